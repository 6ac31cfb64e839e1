// Package lms posts grading comments to a learning management system.
package lms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type Commenter interface {
	Comment(ctx context.Context, assignmentID string, studentID string, text string) error
}

// Canvas posts submission comments through the Canvas REST API.
type Canvas struct {
	baseURL  string
	courseID string
	token    string
	client   *http.Client
}

var _ Commenter = (*Canvas)(nil)

func NewCanvas(baseURL, courseID, token string, client *http.Client) *Canvas {
	if client == nil {
		client = http.DefaultClient
	}
	return &Canvas{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		courseID: courseID,
		token:    token,
		client:   client,
	}
}

func (c *Canvas) Comment(ctx context.Context, assignmentID string, studentID string, text string) error {
	endpoint := fmt.Sprintf("%s/api/v1/courses/%s/assignments/%s/submissions/%s",
		c.baseURL, url.PathEscape(c.courseID), url.PathEscape(assignmentID), url.PathEscape(studentID))
	form := url.Values{"comment[text_comment]": {text}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post comment for %s: %w", studentID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to post comment for %s: status %d: %s", studentID, resp.StatusCode, body)
	}
	return nil
}

// Log only logs comments. It backs dry runs and installations without an LMS.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Comment(ctx context.Context, assignmentID string, studentID string, text string) error {
	l.logger.InfoContext(ctx, "would have posted comment",
		"assignment_id", assignmentID, "student_id", studentID, "text", text)
	return nil
}

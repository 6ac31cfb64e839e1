package lms_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/programme-lv/disttester/internal/lms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanvasComment(t *testing.T) {
	var method, path, auth, comment string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, auth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		assert.NoError(t, r.ParseForm())
		comment = r.PostForm.Get("comment[text_comment]")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := lms.NewCanvas(srv.URL+"/", "42", "secret", srv.Client())
	require.NoError(t, c.Comment(context.Background(), "7", "1001", "[AG]\n\nall good"))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/api/v1/courses/42/assignments/7/submissions/1001", path)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "[AG]\n\nall good", comment)
}

func TestCanvasCommentRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := lms.NewCanvas(srv.URL, "42", "wrong", srv.Client())
	err := c.Comment(context.Background(), "7", "1001", "x")
	assert.ErrorContains(t, err, "status 401")
}

func TestLogCommenter(t *testing.T) {
	require.NoError(t, lms.NewLog(slog.Default()).Comment(context.Background(), "7", "1001", "x"))
}

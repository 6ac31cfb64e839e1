package report

import (
	"fmt"
	"strings"
)

// Log accumulates the plain-text result log that is posted as a
// submission comment.
type Log struct {
	sb     strings.Builder
	passed int
	failed int
}

var _ Gatherer = (*Log)(nil)

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Section(title string) {
	if l.sb.Len() > 0 {
		l.sb.WriteString("\n")
	}
	fmt.Fprintf(&l.sb, "%s\n", title)
}

func (l *Log) Note(msg string) {
	fmt.Fprintf(&l.sb, "%s\n", msg)
}

func (l *Log) Warning(command string, output []byte) {
	fmt.Fprintf(&l.sb, "Warning: command failed, continuing: %s\n", command)
	l.writeExcerpt(output)
}

func (l *Log) CommandFailed(command string, output []byte) {
	fmt.Fprintf(&l.sb, "Command failed: %s\n", command)
	l.writeExcerpt(output)
}

func (l *Log) FinishTest(number, total int, passed bool, hint *string, command string, output []byte) {
	if passed {
		l.passed++
		fmt.Fprintf(&l.sb, "Distributed Test %d of %d: PASSED\n", number, total)
		return
	}
	l.failed++
	fmt.Fprintf(&l.sb, "Distributed Test %d of %d: FAILED\n", number, total)
	if hint != nil {
		fmt.Fprintf(&l.sb, "Hint: %s\n", *hint)
		return
	}
	fmt.Fprintf(&l.sb, "Command ran: %s\n", command)
	l.writeExcerpt(output)
}

// Append copies everything other has gathered to the end of l.
func (l *Log) Append(other *Log) {
	l.sb.WriteString(other.String())
	l.passed += other.passed
	l.failed += other.failed
}

func (l *Log) Passed() int { return l.passed }
func (l *Log) Failed() int { return l.failed }

func (l *Log) String() string {
	return l.sb.String()
}

func (l *Log) writeExcerpt(output []byte) {
	if ex := Excerpt(output); ex != "" {
		fmt.Fprintf(&l.sb, "%s\n", ex)
	}
}

package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// Terminal prints run progress as it happens.
type Terminal struct {
	w         io.Writer
	startedAt time.Time

	pass *color.Color
	fail *color.Color
	warn *color.Color
	head *color.Color
}

var _ Gatherer = (*Terminal)(nil)

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{
		w:         w,
		startedAt: time.Now(),
		pass:      color.New(color.FgGreen, color.Bold),
		fail:      color.New(color.FgRed, color.Bold),
		warn:      color.New(color.FgYellow),
		head:      color.New(color.FgCyan, color.Bold),
	}
}

func (t *Terminal) Section(title string) {
	t.head.Fprintf(t.w, "== %s ==\n", title)
}

func (t *Terminal) Note(msg string) {
	fmt.Fprintf(t.w, "-- %s\n", msg)
}

func (t *Terminal) Warning(command string, output []byte) {
	t.warn.Fprintf(t.w, "!! %s\n", command)
	t.excerpt(output)
}

func (t *Terminal) CommandFailed(command string, output []byte) {
	t.fail.Fprintf(t.w, "xx %s\n", command)
	t.excerpt(output)
}

func (t *Terminal) FinishTest(number, total int, passed bool, hint *string, command string, output []byte) {
	elapsed := time.Since(t.startedAt).Round(time.Millisecond)
	if passed {
		fmt.Fprintf(t.w, "<- test %d/%d ", number, total)
		t.pass.Fprint(t.w, "PASSED")
		fmt.Fprintf(t.w, " (%s)\n", elapsed)
		return
	}
	fmt.Fprintf(t.w, "<- test %d/%d ", number, total)
	t.fail.Fprint(t.w, "FAILED")
	fmt.Fprintf(t.w, " (%s) %s\n", elapsed, command)
	if hint != nil {
		fmt.Fprintf(t.w, "   hint: %s\n", *hint)
	}
	t.excerpt(output)
}

func (t *Terminal) excerpt(output []byte) {
	if ex := Excerpt(output); ex != "" {
		fmt.Fprintf(t.w, "%s\n", ex)
	}
}

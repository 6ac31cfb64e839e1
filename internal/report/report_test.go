package report_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/programme-lv/disttester/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) []byte {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line%d\n", i)
	}
	return []byte(sb.String())
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "", report.Excerpt(nil))
	assert.Equal(t, strings.TrimSpace(string(numberedLines(10))), report.Excerpt(numberedLines(10)))

	ex := report.Excerpt(numberedLines(20))
	assert.Equal(t,
		"line1\nline2\nline3\nline4\nline5\n...\nline15\nline16\nline17\nline18\nline19\nline20", ex)

	wide := report.Excerpt([]byte(strings.Repeat("x", 300)))
	assert.Equal(t, strings.Repeat("x", 200)+"[...]", wide)
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	// byte 200 falls inside the 100th "é"
	ex := report.Excerpt([]byte("x" + strings.Repeat("é", 150)))
	assert.True(t, utf8.ValidString(ex))
	assert.Equal(t, "x"+strings.Repeat("é", 99)+"[...]", ex)
}

func TestLogFormat(t *testing.T) {
	hint := "is the server up?"
	log := report.NewLog()
	log.Section("Tests with your own submission:")
	log.FinishTest(1, 3, true, nil, "./ok", nil)
	log.Warning("ls /nope", []byte("ls: cannot access"))
	log.FinishTest(2, 3, false, &hint, "./client", []byte("refused"))
	log.FinishTest(3, 3, false, nil, "./other", []byte("boom"))
	log.CommandFailed("./setup", []byte("bad"))

	assert.Equal(t, `Tests with your own submission:
Distributed Test 1 of 3: PASSED
Warning: command failed, continuing: ls /nope
ls: cannot access
Distributed Test 2 of 3: FAILED
Hint: is the server up?
Distributed Test 3 of 3: FAILED
Command ran: ./other
boom
Command failed: ./setup
bad
`, log.String())
	assert.Equal(t, 1, log.Passed())
	assert.Equal(t, 2, log.Failed())
}

func TestMultiAndAppend(t *testing.T) {
	var buf bytes.Buffer
	a, b := report.NewLog(), report.NewLog()
	g := report.Multi(a, nil, report.NewTerminal(&buf))
	g.Note("Test with submissions by: Ann, Bob")
	g.FinishTest(1, 1, true, nil, "x", nil)

	b.Append(a)
	require.Equal(t, a.String(), b.String())
	assert.Equal(t, 1, b.Passed())
	assert.Contains(t, buf.String(), "PASSED")
	assert.Contains(t, buf.String(), "Ann, Bob")
}

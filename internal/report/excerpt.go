package report

import (
	"strings"
	"unicode/utf8"
)

const (
	excerptHead  = 5
	excerptTail  = 6
	excerptWidth = 200
)

// Excerpt keeps the first 5 and last 6 lines of long command output and
// cuts overly wide lines.
func Excerpt(output []byte) string {
	s := strings.TrimRight(string(output), "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > excerptHead+excerptTail-1 {
		kept := make([]string, 0, excerptHead+excerptTail+1)
		kept = append(kept, lines[:excerptHead]...)
		kept = append(kept, "...")
		kept = append(kept, lines[len(lines)-excerptTail:]...)
		lines = kept
	}
	for i, line := range lines {
		if len(line) > excerptWidth {
			cut := excerptWidth
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			lines[i] = line[:cut] + "[...]"
		}
	}
	return strings.Join(lines, "\n")
}

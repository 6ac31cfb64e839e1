package dsl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	SectionMarker = "--DT--"
	CleanupMarker = "--DTCLEAN--"
)

type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("distributed test spec, line %d: %s", e.Line, e.Msg)
}

var selectorRe = regexp.MustCompile(`^(\*|\d+(,\d+)*)$`)

type stage int

const (
	stageOutside stage = iota
	stageSetup
	stageGroups
	stageCleanup
)

type parser struct {
	plan  *Plan
	stage stage
	line  int

	hint     *string
	hintLine int
}

// ParseFile parses the spec file at path. See Parse.
func ParseFile(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spec file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse builds a plan from the distributed-test section of a spec. Lines
// before the section marker belong to other tools and are skipped.
func Parse(r io.Reader) (*Plan, error) {
	p := &parser{plan: &Plan{Timeout: DefaultTimeout}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}
	if err := p.closeGroup(); err != nil {
		return nil, err
	}
	return p.plan, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseLine(raw string) error {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	if p.stage == stageOutside {
		if fields[0] == SectionMarker {
			p.stage = stageSetup
		}
		return nil
	}
	if strings.HasPrefix(fields[0], "#") {
		return nil
	}

	directive := fields[0]
	if p.stage == stageCleanup && directive != "ECMD" && directive != "ECMDT" {
		return p.errorf("only ECMD and ECMDT may follow %s, got %s", CleanupMarker, directive)
	}

	switch directive {
	case SectionMarker:
		return p.errorf("duplicate %s marker", SectionMarker)
	case CleanupMarker:
		if err := p.closeGroup(); err != nil {
			return err
		}
		p.stage = stageCleanup
		return nil
	case "PORTS":
		n, err := p.intArg(fields, 0)
		if err != nil {
			return err
		}
		p.plan.PortsPerContainer = n
		return nil
	case "GTO":
		n, err := p.intArg(fields, 1)
		if err != nil {
			return err
		}
		p.plan.Timeout = time.Duration(n) * time.Second
		return nil
	case "DTC":
		return p.openGroup(fields)
	case "ECMD", "ECMDT":
		cmd, err := p.command(raw, fields, External, directive == "ECMDT")
		if err != nil {
			return err
		}
		switch p.stage {
		case stageSetup:
			p.plan.Setup = append(p.plan.Setup, cmd)
		case stageCleanup:
			p.plan.Cleanup = append(p.plan.Cleanup, cmd)
		default:
			p.appendToGroup(cmd)
		}
		return nil
	}

	switch directive {
	case "ICMD", "ICMDT", "HINT", "TESTCMD":
	default:
		return p.errorf("unknown directive %s", directive)
	}
	if p.stage != stageGroups {
		return p.errorf("%s must appear inside a test group opened with DTC", directive)
	}

	switch directive {
	case "ICMD", "ICMDT":
		cmd, err := p.command(raw, fields, InContainer, directive == "ICMDT")
		if err != nil {
			return err
		}
		p.appendToGroup(cmd)
	case "HINT":
		text := rest(raw, 1)
		if text == "" {
			return p.errorf("HINT needs a text")
		}
		p.hint = &text
		p.hintLine = p.line
	case "TESTCMD":
		text := rest(raw, 1)
		if text == "" {
			return p.errorf("TESTCMD needs a command")
		}
		g := p.group()
		g.Hints = append(g.Hints, p.hint)
		p.hint = nil
		p.appendToGroup(Command{Kind: Test, Sync: true, Halting: true, Text: text, Line: p.line})
		p.plan.TotalTests++
	}
	return nil
}

func (p *parser) openGroup(fields []string) error {
	if err := p.closeGroup(); err != nil {
		return err
	}
	machines, err := p.intArg(fields, 1)
	if err != nil {
		return err
	}
	g := Group{Machines: machines, Line: p.line}
	for _, flag := range fields[2:] {
		switch flag {
		case "HOM":
			g.Homogeneous = true
		case "HET":
			g.Heterogeneous = true
		default:
			return p.errorf("unknown DTC flag %s", flag)
		}
	}
	if !g.Homogeneous && !g.Heterogeneous {
		return p.errorf("DTC needs HOM, HET or both")
	}
	p.plan.Groups = append(p.plan.Groups, g)
	p.stage = stageGroups
	return nil
}

func (p *parser) closeGroup() error {
	if p.hint != nil {
		return &ParseError{Line: p.hintLine, Msg: "HINT is not followed by a TESTCMD in its group"}
	}
	return nil
}

func (p *parser) group() *Group {
	return &p.plan.Groups[len(p.plan.Groups)-1]
}

func (p *parser) appendToGroup(cmd Command) {
	g := p.group()
	g.Commands = append(g.Commands, cmd)
}

func (p *parser) intArg(fields []string, lowest int) (int, error) {
	if len(fields) != 2 && fields[0] != "DTC" {
		return 0, p.errorf("%s takes exactly one number", fields[0])
	}
	if len(fields) < 2 {
		return 0, p.errorf("%s needs a number", fields[0])
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, p.errorf("%s: %q is not a number", fields[0], fields[1])
	}
	if n < lowest {
		return 0, p.errorf("%s must be at least %d, got %d", fields[0], lowest, n)
	}
	return n, nil
}

func (p *parser) command(raw string, fields []string, kind Kind, halting bool) (Command, error) {
	if len(fields) < 2 {
		return Command{}, p.errorf("%s needs SYNC or ASYNC", fields[0])
	}
	cmd := Command{Kind: kind, Halting: halting, Line: p.line}
	switch fields[1] {
	case "SYNC":
		cmd.Sync = true
	case "ASYNC":
	default:
		return Command{}, p.errorf("%s: expected SYNC or ASYNC, got %s", fields[0], fields[1])
	}

	skip := 2
	if kind == InContainer && len(fields) > 2 && selectorRe.MatchString(fields[2]) {
		targets, err := p.selector(fields[2])
		if err != nil {
			return Command{}, err
		}
		cmd.Targets = targets
		skip = 3
	}

	cmd.Text = rest(raw, skip)
	if cmd.Text == "" {
		return Command{}, p.errorf("%s has no command", fields[0])
	}
	return cmd, nil
}

func (p *parser) selector(sel string) ([]int, error) {
	if sel == "*" {
		return nil, nil
	}
	machines := p.group().Machines
	var res []int
	for _, s := range strings.Split(sel, ",") {
		idx, err := strconv.Atoi(s)
		if err != nil {
			return nil, p.errorf("bad container index %q", s)
		}
		if idx >= machines {
			return nil, p.errorf("container index %d out of range for a group of %d", idx, machines)
		}
		res = append(res, idx)
	}
	return res, nil
}

// rest returns the raw line after its first n fields with inner spacing
// kept intact.
func rest(line string, n int) string {
	s := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			return ""
		}
		s = strings.TrimLeft(s[end:], " \t")
	}
	return strings.TrimSpace(s)
}

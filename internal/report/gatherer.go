// Package report collects what a grading run has to tell the student.
package report

// Gatherer receives the user-visible events of a run.
type Gatherer interface {
	Section(title string)
	Note(msg string)
	Warning(command string, output []byte)
	CommandFailed(command string, output []byte)
	FinishTest(number, total int, passed bool, hint *string, command string, output []byte)
}

type multi []Gatherer

// Multi forwards every event to each non-nil gatherer in order.
func Multi(gs ...Gatherer) Gatherer {
	var m multi
	for _, g := range gs {
		if g != nil {
			m = append(m, g)
		}
	}
	return m
}

func (m multi) Section(title string) {
	for _, g := range m {
		g.Section(title)
	}
}

func (m multi) Note(msg string) {
	for _, g := range m {
		g.Note(msg)
	}
}

func (m multi) Warning(command string, output []byte) {
	for _, g := range m {
		g.Warning(command, output)
	}
}

func (m multi) CommandFailed(command string, output []byte) {
	for _, g := range m {
		g.CommandFailed(command, output)
	}
}

func (m multi) FinishTest(number, total int, passed bool, hint *string, command string, output []byte) {
	for _, g := range m {
		g.FinishTest(number, total, passed, hint, command, output)
	}
}

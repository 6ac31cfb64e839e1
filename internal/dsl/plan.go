// Package dsl reads the distributed-test section of a test specification.
package dsl

import (
	"fmt"
	"time"
)

// DefaultTimeout applies when the section has no GTO directive.
const DefaultTimeout = 60 * time.Second

type Kind int

const (
	// External commands run on the host, or in the controller container
	// during heterogeneous rounds.
	External Kind = iota
	// InContainer commands fan out across the group's containers.
	InContainer
	// Test commands are graded assertions.
	Test
)

func (k Kind) String() string {
	switch k {
	case External:
		return "external"
	case InContainer:
		return "in-container"
	case Test:
		return "test"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Command struct {
	Kind    Kind
	Sync    bool
	Halting bool
	// Targets lists replica indexes an in-container command runs on.
	// Nil means every container of the group.
	Targets []int
	Text    string
	Line    int
}

type Group struct {
	Machines      int
	Homogeneous   bool
	Heterogeneous bool
	Commands      []Command
	// Hints has one entry per test command, in declaration order.
	Hints []*string
	Line  int
}

// TestCount is the number of test commands in the group.
func (g *Group) TestCount() int {
	return len(g.Hints)
}

type Plan struct {
	// ImageCommand launches one container. It may reference NAME,
	// SUBMISSIONS and PORTS.
	ImageCommand      string
	HostIP            string
	WorkDir           string
	Timeout           time.Duration
	PortsPerContainer int
	Setup             []Command
	Groups            []Group
	Cleanup           []Command
	TotalTests        int
}

func (p *Plan) HomogeneousGroups() []Group {
	var res []Group
	for _, g := range p.Groups {
		if g.Homogeneous {
			res = append(res, g)
		}
	}
	return res
}

func (p *Plan) HeterogeneousGroups() []Group {
	var res []Group
	for _, g := range p.Groups {
		if g.Heterogeneous {
			res = append(res, g)
		}
	}
	return res
}

// MaxHeterogeneousMachines returns the largest machine count among the
// heterogeneous groups, or zero if there are none.
func (p *Plan) MaxHeterogeneousMachines() int {
	res := 0
	for _, g := range p.HeterogeneousGroups() {
		res = max(res, g.Machines)
	}
	return res
}

// FirstTestNumber returns the 1-based number the first test command of
// Groups[idx] carries in "Distributed Test i of N" lines. Each phase counts
// from 1 and only over its own groups; N is always TotalTests.
func (p *Plan) FirstTestNumber(idx int, heterogeneous bool) int {
	n := 1
	for i := 0; i < idx && i < len(p.Groups); i++ {
		g := p.Groups[i]
		if (heterogeneous && g.Heterogeneous) || (!heterogeneous && g.Homogeneous) {
			n += g.TestCount()
		}
	}
	return n
}

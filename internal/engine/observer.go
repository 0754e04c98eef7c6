package engine

import (
	"fmt"

	"github.com/roach88/aether/internal/lattice"
)

// Observer is notified as a step sweeps the grid. Observers see the
// canonical cells only; p is reused between Cell calls.
type Observer interface {
	// BeginStep is called with the state the step starts from and the
	// extent of the generation being built.
	BeginStep(s State, extent int)
	// Cell reports whether the cell at p toppled, i.e. moved a non-zero
	// share to any neighbour.
	Cell(p lattice.Position, toppled bool)
	// EndStep is called with the state after the step was committed.
	EndStep(s State)
}

type nopObserver struct{}

func (nopObserver) BeginStep(State, int)        {}
func (nopObserver) Cell(lattice.Position, bool) {}
func (nopObserver) EndStep(State)               {}

// multiObserver fans out to several observers in registration order.
type multiObserver []Observer

func (m multiObserver) BeginStep(s State, extent int) {
	for _, o := range m {
		o.BeginStep(s, extent)
	}
}

func (m multiObserver) Cell(p lattice.Position, toppled bool) {
	for _, o := range m {
		o.Cell(p, toppled)
	}
}

func (m multiObserver) EndStep(s State) {
	for _, o := range m {
		o.EndStep(s)
	}
}

func combine(obs []Observer) Observer {
	switch len(obs) {
	case 0:
		return nopObserver{}
	case 1:
		return obs[0]
	default:
		return multiObserver(obs)
	}
}

// ComplianceTracker checks the toppling alternation conjecture: on every
// step, cells whose coordinate sum has the parity named by the state's
// EvenTurn flag topple and all other cells do not. A cell is compliant for
// the last step when it toppled exactly if it was its turn.
type ComplianceTracker struct {
	dim       int
	step      int64
	evenTurn  bool
	extent    int
	bound     int
	compliant []bool

	// the step being swept; committed by EndStep
	next pendingStep
}

type pendingStep struct {
	step     int64
	evenTurn bool
	extent   int
	flags    []bool
}

var _ Observer = (*ComplianceTracker)(nil)

// NewComplianceTracker returns a tracker for a lattice of dimension dim.
// Until a step is observed every cell is reported compliant.
func NewComplianceTracker(dim int) *ComplianceTracker {
	return &ComplianceTracker{dim: dim}
}

func turn(p lattice.Position, evenTurn bool) bool {
	return (p.Sum()%2 == 0) == evenTurn
}

// BeginStep starts recording into a pending buffer. The flags of the last
// committed step stay readable until EndStep.
func (c *ComplianceTracker) BeginStep(s State, extent int) {
	next := pendingStep{
		step:     s.Step + 1,
		evenTurn: s.EvenTurn,
		extent:   extent,
		flags:    make([]bool, lattice.Count(c.dim, extent)),
	}
	// cells the sweep does not visit never topple
	_ = lattice.Walk(c.dim, extent, func(p lattice.Position) error {
		next.flags[lattice.Offset(p)] = !turn(p, next.evenTurn)
		return nil
	})
	c.next = next
}

func (c *ComplianceTracker) Cell(p lattice.Position, toppled bool) {
	c.next.flags[lattice.Offset(p)] = toppled == turn(p, c.next.evenTurn)
}

func (c *ComplianceTracker) EndStep(s State) {
	if c.next.flags == nil || c.next.step != s.Step {
		return
	}
	c.step = c.next.step
	c.evenTurn = c.next.evenTurn
	c.extent = c.next.extent
	c.compliant = c.next.flags
	c.bound = s.Bound
	c.next = pendingStep{}
}

// Step returns the step the recorded compliance belongs to, or 0 if no
// step has been observed.
func (c *ComplianceTracker) Step() int64 { return c.step }

// Compliant reports whether the cell at any lattice position followed the
// alternation on the last step.
func (c *ComplianceTracker) Compliant(p lattice.Position) bool {
	canon, _ := lattice.Canonicalize(p)
	if c.compliant == nil {
		return true
	}
	if canon[0] >= c.extent {
		return !turn(canon, c.evenTurn)
	}
	return c.compliant[lattice.Offset(canon)]
}

// AllCompliant reports whether every cell within the bound followed the
// alternation on the last step. Cells beyond the bound hold zero and are not
// considered.
func (c *ComplianceTracker) AllCompliant() bool {
	if c.compliant == nil {
		return true
	}
	n := lattice.Count(c.dim, min(c.bound+1, c.extent))
	for _, ok := range c.compliant[:n] {
		if !ok {
			return false
		}
	}
	return true
}

// Grid returns a copy of the per-cell compliance flags in offset order.
func (c *ComplianceTracker) Grid() []bool {
	out := make([]bool, len(c.compliant))
	copy(out, c.compliant)
	return out
}

// Restore loads flags previously returned by Grid. s is the state the
// recorded step produced.
func (c *ComplianceTracker) Restore(s State, flags []bool) error {
	extent := 0
	for lattice.Count(c.dim, extent) < int64(len(flags)) {
		extent++
	}
	if lattice.Count(c.dim, extent) != int64(len(flags)) {
		return fmt.Errorf("engine: %d compliance flags do not fill whole slices of dimension %d", len(flags), c.dim)
	}
	c.step = s.Step
	c.evenTurn = !s.EvenTurn
	c.bound = s.Bound
	c.extent = extent
	c.compliant = make([]bool, len(flags))
	copy(c.compliant, flags)
	c.next = pendingStep{}
	return nil
}

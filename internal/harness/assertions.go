package harness

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/roach88/aether/internal/lattice"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Step     int64  // Step the failure was observed at
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s at step %d\n", e.Type, e.Step)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// observation is what the runner reports after each step.
type observation struct {
	trace StepTrace
	// total is the sum over the whole lattice.
	total *big.Int
	// full is the unreduced reference grid, nil unless symmetry is checked.
	full map[string]*big.Int
}

// checkStep evaluates the assertions that hold at every step.
func checkStep(s *Scenario, initial *big.Int, o observation) []error {
	var errs []error
	for _, a := range s.Assertions {
		var err error
		switch a.Type {
		case AssertConservation:
			err = assertConservation(initial, o)
		case AssertNonNegative:
			err = assertNonNegative(o.trace)
		case AssertSymmetry:
			err = assertSymmetry(o)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// checkTrace evaluates the assertions tied to particular steps once the run
// has finished.
func checkTrace(s *Scenario, result *Result) []error {
	var errs []error
	for _, a := range s.Assertions {
		var err error
		switch a.Type {
		case AssertValueAt:
			err = assertValueAt(result, a)
		case AssertBoundAt:
			err = assertBoundAt(result, a)
		case AssertCompliant:
			err = assertCompliant(result, a)
		case AssertStabilizesBy:
			err = assertStabilizesBy(result, a)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func assertConservation(initial *big.Int, o observation) error {
	if o.total.Cmp(initial) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertConservation,
		Step:     o.trace.Step,
		Expected: fmt.Sprintf("lattice total %s", initial),
		Actual:   fmt.Sprintf("lattice total %s", o.total),
	}
}

func assertNonNegative(st StepTrace) error {
	for _, pos := range sortedPositions(st.Cells) {
		if strings.HasPrefix(st.Cells[pos], "-") {
			return &AssertionError{
				Type:     AssertNonNegative,
				Step:     st.Step,
				Expected: "no negative cells",
				Actual:   fmt.Sprintf("%s holds %s", pos, st.Cells[pos]),
			}
		}
	}
	return nil
}

// assertSymmetry compares the reduced grid against the unreduced
// reference: every reference cell must match its canonical cell, and the
// reduced cells must account for exactly as many lattice cells.
func assertSymmetry(o observation) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertSymmetry,
			Step:     o.trace.Step,
			Expected: "reduced grid equal to the full-lattice simulation",
			Actual:   actual,
		}
	}
	keys := make([]string, 0, len(o.full))
	for k := range o.full {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, err := lattice.ParsePosition(k)
		if err != nil {
			return fail(err.Error())
		}
		canon, _ := lattice.Canonicalize(p)
		got := o.trace.Cells[canon.String()]
		if want := o.full[k].String(); got != want {
			return fail(fmt.Sprintf("%s holds %s but canonical cell %s holds %q", k, want, canon, got))
		}
	}
	var covered int64
	for pos := range o.trace.Cells {
		p, err := lattice.ParsePosition(pos)
		if err != nil {
			return fail(err.Error())
		}
		covered += lattice.OrbitSize(p)
	}
	if covered != int64(len(o.full)) {
		return fail(fmt.Sprintf("reduced cells cover %d lattice cells, full simulation has %d", covered, len(o.full)))
	}
	return nil
}

func reached(result *Result, a Assertion) (StepTrace, error) {
	st, ok := result.Step(a.Step)
	if ok {
		return st, nil
	}
	last := int64(0)
	if n := len(result.Trace); n > 0 {
		last = result.Trace[n-1].Step
	}
	return st, &AssertionError{
		Type:     a.Type,
		Step:     a.Step,
		Expected: fmt.Sprintf("run reaches step %d", a.Step),
		Actual:   fmt.Sprintf("run ended at step %d", last),
	}
}

func assertValueAt(result *Result, a Assertion) error {
	st, err := reached(result, a)
	if err != nil {
		return err
	}
	canon, _ := lattice.Canonicalize(lattice.Position(a.Position))
	got, ok := st.Cells[canon.String()]
	if !ok {
		got = "0"
	}
	want, _ := new(big.Int).SetString(a.Value, 10)
	if want.String() == got {
		return nil
	}
	return &AssertionError{
		Type:     AssertValueAt,
		Step:     a.Step,
		Expected: fmt.Sprintf("%s holds %s", lattice.Position(a.Position), want),
		Actual:   fmt.Sprintf("%s holds %s", lattice.Position(a.Position), got),
	}
}

func assertBoundAt(result *Result, a Assertion) error {
	st, err := reached(result, a)
	if err != nil {
		return err
	}
	if st.Bound == *a.Bound {
		return nil
	}
	return &AssertionError{
		Type:     AssertBoundAt,
		Step:     a.Step,
		Expected: fmt.Sprintf("bound %d", *a.Bound),
		Actual:   fmt.Sprintf("bound %d", st.Bound),
	}
}

func assertCompliant(result *Result, a Assertion) error {
	st, err := reached(result, a)
	if err != nil {
		return err
	}
	if st.AllCompliant != nil && *st.AllCompliant == *a.Expect {
		return nil
	}
	actual := "not tracked"
	if st.AllCompliant != nil {
		actual = fmt.Sprintf("all compliant = %t", *st.AllCompliant)
	}
	return &AssertionError{
		Type:     AssertCompliant,
		Step:     a.Step,
		Expected: fmt.Sprintf("all compliant = %t", *a.Expect),
		Actual:   actual,
	}
}

func assertStabilizesBy(result *Result, a Assertion) error {
	for _, st := range result.Trace {
		if st.Step > a.Step {
			break
		}
		if st.Step > 0 && !st.Changed {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertStabilizesBy,
		Step:     a.Step,
		Expected: fmt.Sprintf("an unchanged step by step %d", a.Step),
		Actual:   "every step changed the grid",
	}
}

func sortedPositions(cells map[string]string) []string {
	keys := make([]string, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package harness

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/aether/internal/record"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario"`
	Trace        []StepTrace `json:"steps"`
}

// toCanonical converts the snapshot into values record.MarshalCanonical
// accepts. Cell values become exact integers.
func (s *TraceSnapshot) toCanonical() (record.Object, error) {
	steps := make([]any, len(s.Trace))
	for i, st := range s.Trace {
		cells := record.Object{}
		for pos, v := range st.Cells {
			n, ok := new(big.Int).SetString(v, 10)
			if !ok {
				return nil, fmt.Errorf("step %d: %s holds non-integer %q", st.Step, pos, v)
			}
			cells[pos] = n
		}
		entry := record.Object{
			"step":    st.Step,
			"bound":   st.Bound,
			"changed": st.Changed,
			"cells":   cells,
		}
		if st.AllCompliant != nil {
			entry["all_compliant"] = *st.AllCompliant
		}
		steps[i] = entry
	}
	return record.Object{
		"scenario": s.ScenarioName,
		"steps":    steps,
	}, nil
}

// MarshalTrace encodes a scenario trace as canonical JSON.
func MarshalTrace(name string, trace []StepTrace) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: trace}
	obj, err := snapshot.toCanonical()
	if err != nil {
		return nil, err
	}
	return record.MarshalCanonical(obj)
}

// TraceDigest returns the domain-separated digest of a canonical trace.
func TraceDigest(name string, trace []StepTrace) (string, error) {
	data, err := MarshalTrace(name, trace)
	if err != nil {
		return "", err
	}
	return record.Digest(record.DomainTrace, data), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

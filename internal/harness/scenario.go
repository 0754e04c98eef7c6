package harness

import (
	"bytes"
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/aether/internal/config"
)

// DefaultMaxSteps caps runs that go until stable.
const DefaultMaxSteps = 10000

// Scenario defines one automaton run and the assertions it must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Dimension int `yaml:"dimension"`

	// Initial is the decimal value placed at the origin.
	Initial string `yaml:"initial"`

	// Variant selects arithmetic and storage; empty means big_int.
	Variant string `yaml:"variant,omitempty"`

	// Steps is the number of steps to run. With UntilStable the run also
	// stops at the first step that changes nothing; Steps may then be 0.
	Steps       int64 `yaml:"steps,omitempty"`
	UntilStable bool  `yaml:"until_stable,omitempty"`

	// MaxSteps bounds runs with Steps = 0. Defaults to DefaultMaxSteps.
	MaxSteps int64 `yaml:"max_steps,omitempty"`

	// Compliance attaches a toppling alternation tracker.
	Compliance bool `yaml:"compliance,omitempty"`

	// RestoreAt, when positive, snapshots the automaton after that step,
	// stores and reloads the snapshot, and continues from the restored copy.
	RestoreAt int64 `yaml:"restore_at,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type, one of the Assert* constants.
	Type string `yaml:"type"`

	// Step is the step checked by value_at, bound_at and compliant, and the
	// latest acceptable step for stabilizes_by.
	Step int64 `yaml:"step,omitempty"`

	// Position is any lattice position (used by value_at).
	Position []int `yaml:"position,omitempty"`

	// Value is the expected decimal value (used by value_at).
	Value string `yaml:"value,omitempty"`

	// Bound is the expected coordinate bound (used by bound_at).
	Bound *int `yaml:"bound,omitempty"`

	// Expect is the expected compliance (used by compliant).
	Expect *bool `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertConservation = "conservation"
	AssertNonNegative  = "non_negative"
	AssertSymmetry     = "symmetry"
	AssertValueAt      = "value_at"
	AssertBoundAt      = "bound_at"
	AssertStabilizesBy = "stabilizes_by"
	AssertCompliant    = "compliant"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// variant returns the configured variant, defaulting to big_int.
func (s *Scenario) variant() config.Variant {
	if s.Variant == "" {
		return config.VariantBig
	}
	return config.Variant(s.Variant)
}

func (s *Scenario) maxSteps() int64 {
	switch {
	case s.Steps > 0:
		return s.Steps
	case s.MaxSteps > 0:
		return s.MaxSteps
	}
	return DefaultMaxSteps
}

func (s *Scenario) has(kind string) bool {
	for _, a := range s.Assertions {
		if a.Type == kind {
			return true
		}
	}
	return false
}

func (s *Scenario) initial() (*big.Int, bool) {
	return new(big.Int).SetString(s.Initial, 10)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Dimension < 1 {
		return fmt.Errorf("dimension must be at least 1, got %d", s.Dimension)
	}
	initial, ok := s.initial()
	if !ok {
		return fmt.Errorf("initial %q is not a decimal integer", s.Initial)
	}
	if _, err := config.ParseVariant(string(s.variant())); err != nil {
		return err
	}
	if s.Steps < 0 || s.MaxSteps < 0 || s.RestoreAt < 0 {
		return fmt.Errorf("steps, max_steps and restore_at must be non-negative")
	}
	if s.Steps == 0 && !s.UntilStable {
		return fmt.Errorf("steps must be positive unless until_stable is set")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, s, initial); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario, initial *big.Int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertConservation, AssertSymmetry:
	case AssertNonNegative:
		if initial.Sign() < 0 {
			return fmt.Errorf("assertions[%d]: non_negative requires a non-negative initial value", index)
		}
	case AssertValueAt:
		if len(a.Position) != s.Dimension {
			return fmt.Errorf("assertions[%d]: position must have %d coordinates for value_at", index, s.Dimension)
		}
		if _, ok := new(big.Int).SetString(a.Value, 10); !ok {
			return fmt.Errorf("assertions[%d]: value %q is not a decimal integer", index, a.Value)
		}
	case AssertBoundAt:
		if a.Bound == nil {
			return fmt.Errorf("assertions[%d]: bound is required for bound_at", index)
		}
	case AssertStabilizesBy:
		if a.Step < 1 {
			return fmt.Errorf("assertions[%d]: step must be positive for stabilizes_by", index)
		}
	case AssertCompliant:
		if !s.Compliance {
			return fmt.Errorf("assertions[%d]: compliant requires compliance: true", index)
		}
		if a.Step < 1 {
			return fmt.Errorf("assertions[%d]: step must be positive for compliant", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for compliant", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// Package harness runs YAML scenarios against the automaton and checks the
// laws it must obey.
//
// # Scenario Format
//
//	name: one_d_nine
//	description: "1D source of 9 settles after two steps"
//	dimension: 1
//	initial: "9"
//	variant: int64        # big_int (default), int64 or file_int64
//	steps: 4              # 0 runs until stable (requires until_stable)
//	until_stable: false
//	compliance: true      # track toppling alternation
//	restore_at: 2         # snapshot, store and restore after this step
//	assertions:
//	  - type: conservation
//	  - type: value_at
//	    step: 2
//	    position: [-1]
//	    value: "2"
//
// # Assertion Types
//
//   - conservation: the lattice total equals the initial value after every step
//   - non_negative: no cell goes negative (non-negative initial values only)
//   - symmetry: every step matches an unreduced full-lattice simulation
//   - value_at: the value at any lattice position after a given step
//   - bound_at: the coordinate bound after a given step
//   - stabilizes_by: some step up to the given one leaves the grid unchanged
//   - compliant: whether every cell followed the toppling alternation
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory snapshot store and sequential snapshot
// ids, so traces are byte-identical across runs and across variants. Traces
// are compared with golden files under testdata/golden.
package harness

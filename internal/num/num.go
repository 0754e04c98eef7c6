// Package num abstracts the value type held by each lattice cell.
//
// The automaton is generic over its cell values. Int64 is fast and fixed
// width, which the file-backed grid relies on; Big has no range limit. Both
// satisfy Arith so the toppling rule and the sweep are written once.
package num

import (
	"fmt"
	"math"
)

// Kind names a value representation. Kinds appear in snapshots and
// configuration files.
type Kind string

const (
	KindInt64 Kind = "int64"
	KindBig   Kind = "big_int"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindInt64, KindBig:
		return k, nil
	default:
		return "", fmt.Errorf("num: unknown kind %q", s)
	}
}

// Arith is the arithmetic the automaton needs from a cell value type.
// Implementations must treat values as immutable: every operation returns a
// fresh result and never modifies its operands.
type Arith[T any] interface {
	Kind() Kind
	Zero() T
	FromInt64(v int64) T
	Add(a, b T) T
	Sub(a, b T) T
	// MulSmall returns a·m.
	MulSmall(a T, m int64) T
	// QuoRemSmall returns the quotient truncated toward zero and the
	// remainder, which carries the sign of a.
	QuoRemSmall(a T, m int64) (q, r T)
	Cmp(a, b T) int
	Sign(a T) int
	String(a T) string
	Parse(s string) (T, error)
	// AppendBinary appends a self-delimiting encoding of a to dst.
	AppendBinary(dst []byte, a T) []byte
	// DecodeBinary decodes one value from the front of b and returns the
	// unread remainder.
	DecodeBinary(b []byte) (T, []byte, error)
}

// MinInt64Initial returns the most negative initial value an int64
// automaton of dimension d accepts. Positive values are never limited.
//
// A negative source pulls value in from the surrounding zeros, and the gap
// a cell tops up can reach |initial|·(2d-1)/2 before it is split. For d = 1
// the gap never exceeds |initial|.
func MinInt64Initial(d int) int64 {
	if d <= 1 {
		return -math.MaxInt64
	}
	limit := uint64(math.MaxInt64) * 2 / uint64(2*d-1)
	return -int64(limit)
}

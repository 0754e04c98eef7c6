package num

import (
	"encoding/binary"
	"errors"
	"strconv"
)

// Int64 is the fixed-width arithmetic. Overflow is not checked; callers
// bound the initial value with MinInt64Initial.
type Int64 struct{}

var _ Arith[int64] = Int64{}

func (Int64) Kind() Kind                { return KindInt64 }
func (Int64) Zero() int64               { return 0 }
func (Int64) FromInt64(v int64) int64   { return v }
func (Int64) Add(a, b int64) int64      { return a + b }
func (Int64) Sub(a, b int64) int64      { return a - b }
func (Int64) MulSmall(a, m int64) int64 { return a * m }
func (Int64) String(a int64) string     { return strconv.FormatInt(a, 10) }

func (Int64) QuoRemSmall(a, m int64) (int64, int64) {
	return a / m, a % m
}

func (Int64) Cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (Int64) Sign(a int64) int {
	return Int64{}.Cmp(a, 0)
}

func (Int64) Parse(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// AppendBinary writes a as 8 big-endian bytes.
func (Int64) AppendBinary(dst []byte, a int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(a))
}

func (Int64) DecodeBinary(b []byte) (int64, []byte, error) {
	if len(b) < 8 {
		return 0, b, errors.New("num: short int64 encoding")
	}
	return int64(binary.BigEndian.Uint64(b)), b[8:], nil
}

package num

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// Big is the arbitrary-precision arithmetic. Results are always newly
// allocated, so values may be shared freely between cells.
type Big struct{}

var _ Arith[*big.Int] = Big{}

var bigZero = new(big.Int)

func (Big) Kind() Kind { return KindBig }

// Zero returns a shared zero. It must not be modified.
func (Big) Zero() *big.Int { return bigZero }

func (Big) FromInt64(v int64) *big.Int { return big.NewInt(v) }

func (Big) Add(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }

func (Big) Sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }

func (Big) MulSmall(a *big.Int, m int64) *big.Int {
	return new(big.Int).Mul(a, big.NewInt(m))
}

func (Big) QuoRemSmall(a *big.Int, m int64) (*big.Int, *big.Int) {
	return new(big.Int).QuoRem(a, big.NewInt(m), new(big.Int))
}

func (Big) Cmp(a, b *big.Int) int { return a.Cmp(b) }

func (Big) Sign(a *big.Int) int { return a.Sign() }

func (Big) String(a *big.Int) string { return a.String() }

func (Big) Parse(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("num: invalid integer %q", s)
	}
	return v, nil
}

// AppendBinary writes a uvarint length followed by the gob encoding of a.
func (Big) AppendBinary(dst []byte, a *big.Int) []byte {
	enc, err := a.GobEncode()
	if err != nil {
		// GobEncode only fails for nil receivers, which never reach here.
		panic(err)
	}
	dst = binary.AppendUvarint(dst, uint64(len(enc)))
	return append(dst, enc...)
}

func (Big) DecodeBinary(b []byte) (*big.Int, []byte, error) {
	n, k := binary.Uvarint(b)
	if k <= 0 || uint64(len(b)-k) < n {
		return nil, b, errors.New("num: short big_int encoding")
	}
	b = b[k:]
	v := new(big.Int)
	if err := v.GobDecode(b[:n]); err != nil {
		return nil, b, fmt.Errorf("num: decode big_int: %w", err)
	}
	return v, b[n:], nil
}

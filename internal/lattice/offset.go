package lattice

// binomial returns C(n, k), or 0 when k < 0 or n < k.
func binomial(n, k int) int64 {
	if k < 0 || n < k {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := int64(1)
	for i := 1; i <= k; i++ {
		r = r * int64(n-k+i) / int64(i)
	}
	return r
}

// Count returns the number of canonical positions of dimension d whose
// first coordinate is below n.
func Count(d, n int) int64 {
	if n <= 0 {
		return 0
	}
	return binomial(n+d-1, d)
}

// SliceCount returns the number of canonical positions of dimension d whose
// first coordinate equals w.
func SliceCount(d, w int) int64 {
	if w < 0 {
		return 0
	}
	return binomial(w+d-1, d-1)
}

// Offset returns the index of the canonical position c in lexicographic
// order. It panics if c is not canonical.
func Offset(c Position) int64 {
	mustCanonical(c)
	d := len(c)
	var off int64
	for i, v := range c {
		off += binomial(v+d-1-i, d-i)
	}
	return off
}

// SliceOffset returns the index of c within its slice, the canonical
// positions sharing c[0].
func SliceOffset(c Position) int64 {
	return Offset(c) - Count(len(c), c[0])
}

// WalkSlice calls fn for every canonical position of dimension d with first
// coordinate w, in offset order. The position passed to fn is reused between
// calls and must be cloned if retained. A non-nil error from fn stops the walk.
func WalkSlice(d, w int, fn func(Position) error) error {
	if d <= 0 || w < 0 {
		return nil
	}
	p := make(Position, d)
	p[0] = w
	for {
		if err := fn(p); err != nil {
			return err
		}
		i := d - 1
		for i >= 1 && p[i] == p[i-1] {
			i--
		}
		if i < 1 {
			return nil
		}
		p[i]++
		for j := i + 1; j < d; j++ {
			p[j] = 0
		}
	}
}

// Walk calls fn for every canonical position of dimension d with first
// coordinate below n, in offset order.
func Walk(d, n int, fn func(Position) error) error {
	for w := 0; w < n; w++ {
		if err := WalkSlice(d, w, fn); err != nil {
			return err
		}
	}
	return nil
}

package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Domain prefixes for digests. The version suffix leaves room for a future
// change of encoding.
const (
	DomainGrid       = "aether/grid/v1"
	DomainCompliance = "aether/compliance/v1"
	DomainTrace      = "aether/trace/v1"
)

// Digest computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data), hex encoded.
func Digest(domain string, data []byte) string {
	h := NewDigester(domain)
	h.Write(data)
	return h.Sum()
}

// Digester computes a domain-separated digest incrementally, for payloads
// too large to hold in memory such as generation files.
type Digester struct {
	h hash.Hash
}

// NewDigester starts a digest in domain.
func NewDigester(domain string) *Digester {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return &Digester{h: h}
}

func (d *Digester) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (d *Digester) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// CanonicalDigest marshals v canonically and digests it in domain.
func CanonicalDigest(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("record: %s: %w", domain, err)
	}
	return Digest(domain, data), nil
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTriple = "lattice/triple/v1"
	DomainSchema = "lattice/schema/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TripleID computes the content-addressed identity of a triple write.
//
// The value is not hashed. A timestamp is unique per write, so a
// re-delivered write maps to the same ID and stores can deduplicate on it.
func TripleID(t Triple) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"entity_id": t.EntityID,
		"attribute": t.Attribute,
		"timestamp": t.Timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("TripleID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTriple, canonical), nil
}

// MustTripleID is like TripleID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTripleID(t Triple) string {
	id, err := TripleID(t)
	if err != nil {
		panic(err)
	}
	return id
}

// ContentHash hashes an arbitrary canonical JSON document under a domain.
// Used to fingerprint schema definitions.
func ContentHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ContentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

package packagetypes

import (
	// Registers SHA-256 so go-digest reports the algorithm as available.
	_ "crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Digest is the SHA-256 digest of a file's content.
// Package metadata stores it as bare lowercase hex; internally it is an
// algorithm-qualified go-digest value.
type Digest digest.Digest

// ParseDigest parses a hex-encoded SHA-256 digest.
func ParseDigest(hexValue string) (Digest, error) {
	d := Digest(digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(strings.TrimSpace(hexValue))))
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// NewDigest wraps a computed go-digest value.
func NewDigest(d digest.Digest) Digest {
	return Digest(d)
}

// Hex returns the hex-encoded digest without the algorithm prefix.
func (d Digest) Hex() string {
	if _, encoded, ok := strings.Cut(string(d), ":"); ok {
		return encoded
	}
	return string(d)
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return d.Hex()
}

// Validate checks that d is a well formed SHA-256 digest.
func (d Digest) Validate() error {
	dd := digest.Digest(d)
	if err := dd.Validate(); err != nil {
		return fmt.Errorf("invalid sha256 digest %q: %w", string(d), err)
	}
	if dd.Algorithm() != digest.SHA256 {
		return fmt.Errorf("invalid sha256 digest: unexpected algorithm %s", dd.Algorithm())
	}
	return nil
}

// Equal reports whether two digests are the same.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// MarshalJSON encodes the digest as bare hex.
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Hex())
}

// UnmarshalJSON decodes a bare hex digest.
func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDigest(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML encodes the digest as bare hex.
func (d Digest) MarshalYAML() (interface{}, error) {
	return d.Hex(), nil
}

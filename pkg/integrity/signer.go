package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// DefaultVersion is the signature format written by new signers.
const DefaultVersion = "v1"

const keyInfoPrefix = "activity-signature:"

var (
	// ErrMissingSignature is returned by ParseSignature for empty input.
	ErrMissingSignature = errors.New("signature missing")
	// ErrMalformedSignature is returned when the "<version>:<hex>" shape is broken.
	ErrMalformedSignature = errors.New("signature malformed")
	// ErrUnknownVersion is returned when no key is held for the signature version.
	ErrUnknownVersion = errors.New("signature version unknown")
)

// Signer computes and verifies versioned HMAC-SHA256 signatures over
// canonicalised activity fields. Keys are derived once at construction and
// never change afterwards; rotating the secret means adding a new version.
type Signer struct {
	current string
	keys    map[string][]byte
}

// NewSigner derives the signing key for version from secret. legacy maps older
// versions to the secrets they were signed with so they stay verifiable.
func NewSigner(version, secret string, legacy map[string]string) (*Signer, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}
	if strings.Contains(version, ":") {
		return nil, fmt.Errorf("signature version %q must not contain ':'", version)
	}
	if secret == "" {
		return nil, fmt.Errorf("signing secret missing")
	}
	keys := make(map[string][]byte, len(legacy)+1)
	for v, s := range legacy {
		v = strings.TrimSpace(v)
		if v == "" || s == "" || v == version {
			continue
		}
		key, err := deriveKey(s, v)
		if err != nil {
			return nil, err
		}
		keys[v] = key
	}
	key, err := deriveKey(secret, version)
	if err != nil {
		return nil, err
	}
	keys[version] = key
	return &Signer{current: version, keys: keys}, nil
}

func deriveKey(secret, version string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfoPrefix+version))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key for %s: %w", version, err)
	}
	return key, nil
}

// Version returns the version tag new signatures carry.
func (s *Signer) Version() string {
	return s.current
}

// Versions lists every version this signer can verify.
func (s *Signer) Versions() []string {
	out := make([]string, 0, len(s.keys))
	for v := range s.keys {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Sign returns "<version>:<lowercase-hex>" for fields under the current version.
func (s *Signer) Sign(fields Fields) (string, error) {
	digest, err := s.digest(s.current, fields)
	if err != nil {
		return "", err
	}
	return s.current + ":" + hex.EncodeToString(digest), nil
}

// Verify recomputes the digest for the version named in signature and compares
// it in constant time. Any missing, malformed or unknown signature is false.
func (s *Signer) Verify(signature string, fields Fields) bool {
	version, digestHex, err := ParseSignature(signature)
	if err != nil {
		return false
	}
	stored, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	expected, err := s.digest(version, fields)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, stored)
}

// Check is Verify with the failure reason kept, for operator reports.
func (s *Signer) Check(signature string, fields Fields) error {
	version, digestHex, err := ParseSignature(signature)
	if err != nil {
		return err
	}
	if _, ok := s.keys[version]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	if !s.Verify(signature, fields) {
		return fmt.Errorf("digest mismatch for %s:%s", version, abbreviate(digestHex))
	}
	return nil
}

func (s *Signer) digest(version string, fields Fields) ([]byte, error) {
	key, ok := s.keys[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	payload, err := Canonicalize(version, fields)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(payload)
	return mac.Sum(nil), nil
}

// ParseSignature splits a stored signature into version and hex digest.
func ParseSignature(signature string) (version, digest string, err error) {
	if strings.TrimSpace(signature) == "" {
		return "", "", ErrMissingSignature
	}
	parts := strings.SplitN(signature, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformedSignature
	}
	if len(parts[1]) != sha256.Size*2 || strings.ToLower(parts[1]) != parts[1] {
		return "", "", ErrMalformedSignature
	}
	return parts[0], parts[1], nil
}

// TamperedFields lists canonical field names whose values differ between the
// original snapshot and current. It is diagnostic only and never decides validity.
func TamperedFields(original, current Fields) []string {
	changed := make([]string, 0, 4)
	if original.Type != current.Type {
		changed = append(changed, FieldType)
	}
	if original.Description != current.Description {
		changed = append(changed, FieldDescription)
	}
	if derefString(original.ActorID) != derefString(current.ActorID) || (original.ActorID == nil) != (current.ActorID == nil) {
		changed = append(changed, FieldActorID)
	}
	if original.Module != current.Module {
		changed = append(changed, FieldModule)
	}
	if original.Result != current.Result {
		changed = append(changed, FieldResult)
	}
	if !normalizeTime(original.CreatedAt).Equal(normalizeTime(current.CreatedAt)) {
		changed = append(changed, FieldCreatedAt)
	}
	if !original.Properties.Equal(current.Properties) {
		changed = append(changed, FieldProperties)
	}
	return changed
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func abbreviate(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12] + "…"
}

package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

const (
	sealedPrefix = "ENC[age:"
	sealedSuffix = "]"
)

// ErrNoIdentity is returned when a sealed value is opened without a key.
var ErrNoIdentity = errors.New("no age identity configured")

// Sealer seals and opens credential passwords stored in the profile store.
type Sealer struct {
	identity *age.X25519Identity
}

// NewSealer wraps an existing identity. A nil identity yields a Sealer that
// passes plaintext through and refuses to open sealed values.
func NewSealer(identity *age.X25519Identity) *Sealer {
	return &Sealer{identity: identity}
}

// LoadSealer reads the first X25519 identity from path.
func LoadSealer(path string) (*Sealer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age identity: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", path)
	}
	id, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("unexpected identity type in %s", path)
	}
	return NewSealer(id), nil
}

// Seal encrypts plaintext into an ENC[age:...] blob.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || s.identity == nil {
		return "", ErrNoIdentity
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("age encrypt init: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt close: %w", err)
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + sealedSuffix, nil
}

// Open decrypts a sealed blob. Values that are not sealed are returned as-is.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if s == nil || s.identity == nil {
		return "", ErrNoIdentity
	}
	encoded := value[len(sealedPrefix) : len(value)-len(sealedSuffix)]
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read decrypted: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether value is an ENC[age:...] blob.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix) && strings.HasSuffix(value, sealedSuffix)
}

package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argon2Version = 19 // argon2.Version is 0x13 (19)
	argon2Prefix  = "$argon2id$"
)

// randReader is swapped by tests to simulate an unavailable random source.
var randReader io.Reader = rand.Reader

// Hash derives a salted one-way hash of password using c.Scheme.
// The same password never hashes to the same string twice.
func (c Config) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidInput
	}
	if c.Policy.MaxLength > 0 && len(password) > c.Policy.MaxLength*4 {
		// Byte bound for the digest input; Validate enforces the rune bound.
		return "", ErrPasswordTooLong
	}

	salt, err := newSalt()
	if err != nil {
		return "", err
	}

	switch c.Scheme {
	case SchemeSHA256:
		return encodeSHA256(salt, digestSHA256(salt, password)), nil
	case SchemeArgon2id, "":
		return c.hashArgon2id(salt, password), nil
	default:
		return "", fmt.Errorf("%w: unknown scheme %q", ErrConfig, c.Scheme)
	}
}

// Verify reports whether password matches stored.
// Malformed, truncated or unsupported records yield false.
func (c Config) Verify(password, stored string) bool {
	switch {
	case strings.HasPrefix(stored, argon2Prefix):
		return c.verifyArgon2id(password, stored)
	case isBcrypt(stored):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	default:
		return verifySHA256(password, stored)
	}
}

// NeedsRehash reports whether stored was produced by a scheme or cost other
// than the configured one. Malformed values also need a rehash.
func (c Config) NeedsRehash(stored string) bool {
	switch c.Scheme {
	case SchemeSHA256:
		_, _, ok := decodeSHA256(stored)
		return !ok
	default:
		params, salt, _, err := decodeArgon2id(stored)
		if err != nil {
			return true
		}
		return params != c.Params || len(salt) != SaltLength
	}
}

func newSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrRandomSource, err)
	}
	return salt, nil
}

func (c Config) hashArgon2id(salt []byte, password string) string {
	key := argon2.IDKey(
		[]byte(password),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		c.Params.MemoryKiB,
		c.Params.Iterations,
		c.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	)
}

func (c Config) verifyArgon2id(password, stored string) bool {
	params, salt, expected, err := decodeArgon2id(stored)
	if err != nil {
		return false
	}

	// Attacker-controlled records must not dictate unbounded cost.
	if !withinReasonableBounds(params, c.Params) || len(salt) < 8 || len(salt) > 64 {
		return false
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		params.KeyLength,
	)

	return subtle.ConstantTimeCompare(key, expected) == 1
}

func withinReasonableBounds(got Argon2idParams, limits Argon2idParams) bool {
	// Older/smaller settings still verify; wildly larger ones do not.
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

// decodeArgon2id parses $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>.
func decodeArgon2id(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, errMalformed
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2idParams{}, nil, nil, errMalformed
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, errMalformed
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, errMalformed
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, errMalformed
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) > 1024 {
		return Argon2idParams{}, nil, nil, errMalformed
	}

	params := Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		KeyLength:   uint32(len(key)), // #nosec G115 -- bounded above.
	}
	return params, salt, key, nil
}

func digestSHA256(salt []byte, password string) []byte {
	h := sha256.New()
	_, _ = h.Write(salt)
	_, _ = h.Write([]byte(password))
	return h.Sum(nil)
}

func encodeSHA256(salt, digest []byte) string {
	buf := make([]byte, 0, len(salt)+len(digest))
	buf = append(buf, salt...)
	buf = append(buf, digest...)
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeSHA256(stored string) (salt, digest []byte, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) < SaltLength {
		return nil, nil, false
	}
	return raw[:SaltLength], raw[SaltLength:], true
}

func verifySHA256(password, stored string) bool {
	salt, expected, ok := decodeSHA256(stored)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(digestSHA256(salt, password), expected) == 1
}

func isBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

var defaultConfig = DefaultConfig()

// Hash hashes password with DefaultConfig.
func Hash(password string) (string, error) { return defaultConfig.Hash(password) }

// Verify verifies password against stored with DefaultConfig bounds.
func Verify(password, stored string) bool { return defaultConfig.Verify(password, stored) }

package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	// TokenAlphabet is the 64-symbol session token alphabet.
	TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	// TemporaryPasswordAlphabet omits 0/O and 1/I/l.
	TemporaryPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

	DefaultTokenLength             = 32
	DefaultTemporaryPasswordLength = 12

	minTokenLength = 32
	maxTokenLength = 128

	minTemporaryPasswordLength = 8
	maxTemporaryPasswordLength = 64
)

// Config sets output lengths.
type Config struct {
	TokenLength             int
	TemporaryPasswordLength int
}

// DefaultConfig returns the baseline lengths.
func DefaultConfig() Config {
	return Config{
		TokenLength:             DefaultTokenLength,
		TemporaryPasswordLength: DefaultTemporaryPasswordLength,
	}
}

// FromEnv loads Config from environment variables.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("LIBRA_TOKEN_LENGTH"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < minTokenLength || n > maxTokenLength {
			return Config{}, fmt.Errorf("%w: LIBRA_TOKEN_LENGTH out of range [%d..%d]", ErrConfig, minTokenLength, maxTokenLength)
		}
		cfg.TokenLength = n
	}

	if v, ok := os.LookupEnv("LIBRA_TEMP_PASSWORD_LENGTH"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < minTemporaryPasswordLength || n > maxTemporaryPasswordLength {
			return Config{}, fmt.Errorf("%w: LIBRA_TEMP_PASSWORD_LENGTH out of range [%d..%d]", ErrConfig, minTemporaryPasswordLength, maxTemporaryPasswordLength)
		}
		cfg.TemporaryPasswordLength = n
	}

	return cfg, nil
}

// Generator draws tokens and temporary passwords from a secure random source.
// It is safe for concurrent use when its reader is.
type Generator struct {
	cfg Config
	src io.Reader
}

// NewGenerator returns a Generator reading from crypto/rand.
// Lengths below the minimums are raised to them.
func NewGenerator(cfg Config) *Generator {
	return NewGeneratorWithSource(cfg, rand.Reader)
}

// NewGeneratorWithSource is NewGenerator with an explicit entropy source.
func NewGeneratorWithSource(cfg Config, src io.Reader) *Generator {
	if cfg.TokenLength < minTokenLength {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.TemporaryPasswordLength < minTemporaryPasswordLength {
		cfg.TemporaryPasswordLength = DefaultTemporaryPasswordLength
	}
	if src == nil {
		src = rand.Reader
	}
	return &Generator{cfg: cfg, src: src}
}

// Token returns an opaque session identifier from TokenAlphabet.
func (g *Generator) Token() (string, error) {
	n := g.cfg.TokenLength
	buf := make([]byte, n)
	if _, err := io.ReadFull(g.src, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomSource, err)
	}

	// 64 symbols: the low 6 bits index the alphabet without bias.
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = TokenAlphabet[b&0x3f]
	}
	return string(out), nil
}

// TemporaryPassword returns a one-time password from TemporaryPasswordAlphabet.
func (g *Generator) TemporaryPassword() (string, error) {
	return g.fromAlphabet(TemporaryPasswordAlphabet, g.cfg.TemporaryPasswordLength)
}

// fromAlphabet uses rejection sampling so every symbol is equally likely.
func (g *Generator) fromAlphabet(alphabet string, n int) (string, error) {
	size := len(alphabet)
	limit := 256 - (256 % size)

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRandomSource, err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%size])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

var defaultGenerator = NewGenerator(DefaultConfig())

// GenerateToken returns a 32-symbol session token.
func GenerateToken() (string, error) { return defaultGenerator.Token() }

// GenerateTemporaryPassword returns a 12-symbol temporary password.
func GenerateTemporaryPassword() (string, error) { return defaultGenerator.TemporaryPassword() }

// Fingerprint returns a short SHA-256 hex prefix of s for log correlation.
// The token itself must never be logged.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}

package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Scheme names the algorithm Hash produces.
type Scheme string

const (
	// SchemeArgon2id is the memory-hard default.
	SchemeArgon2id Scheme = "argon2id"
	// SchemeSHA256 is the single-pass salted digest kept for legacy records.
	SchemeSHA256 Scheme = "sha256"
)

// SaltLength is the per-hash salt size in bytes for every scheme Hash produces.
const SaltLength = 16

// DefaultSymbols is the punctuation set IsStrong accepts.
const DefaultSymbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// Policy is the fixed strength rule set plus anti-DoS bounds.
type Policy struct {
	MinLength int
	MaxLength int
	Symbols   string
}

// Config is the single configuration surface for this package.
type Config struct {
	Scheme Scheme
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline used when no environment overrides exist.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Scheme: SchemeArgon2id,
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,              // interactive logins
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
			Symbols:   DefaultSymbols,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - LIBRA_PASSWORD_SCHEME (argon2id|sha256)
// - LIBRA_PASSWORD_MIN_LEN
// - LIBRA_PASSWORD_MAX_LEN
// - LIBRA_ARGON2_MEMORY_KIB
// - LIBRA_ARGON2_ITERATIONS
// - LIBRA_ARGON2_PARALLELISM
// - LIBRA_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("LIBRA_PASSWORD_SCHEME"); ok {
		s, err := parseScheme(v)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_PASSWORD_SCHEME: %w", err)
		}
		cfg.Scheme = s
	}

	if v, ok := os.LookupEnv("LIBRA_PASSWORD_MIN_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("LIBRA_PASSWORD_MAX_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("LIBRA_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("LIBRA_ARGON2_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("LIBRA_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_ARGON2_PARALLELISM: %w", err)
		}
		p, err := u32ToU8(u)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = p
	}

	if v, ok := os.LookupEnv("LIBRA_ARGON2_KEY_LEN"); ok {
		u, err := atou32(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("LIBRA_ARGON2_KEY_LEN: %w", err)
		}
		cfg.Params.KeyLength = u
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"%w: min_len(%d) > max_len(%d)",
			ErrConfig,
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func parseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeArgon2id:
		return SchemeArgon2id, nil
	case SchemeSHA256:
		return SchemeSHA256, nil
	default:
		return "", fmt.Errorf("unknown scheme %q", s)
	}
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}

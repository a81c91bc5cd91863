// Package token produces unpredictable fixed-length strings for libra.
//
// Two alphabets are used:
//   - session tokens: A-Z a-z 0-9 '-' '_' (64 symbols, URL safe, 6 bits per symbol)
//   - temporary passwords: letters and digits without 0/O and 1/I/l
//
// All randomness comes from crypto/rand. A failing source is reported as
// ErrRandomSource; there is no fallback to a weaker generator.
//
// Environment:
// - LIBRA_TOKEN_LENGTH (default 32, range 32..128)
// - LIBRA_TEMP_PASSWORD_LENGTH (default 12, range 8..64)
package token

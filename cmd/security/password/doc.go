// Package password implements one-way credential hashing and verification for libra.
//
// Hashes are self-describing strings so that records produced by older schemes
// keep verifying after the default changes:
//   - argon2id (default): $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
//   - sha256 (legacy):    base64(salt[16] || SHA-256(salt || password))
//   - bcrypt (import only): $2a$/$2b$/$2y$ strings are accepted by Verify
//
// Verify treats the stored value as untrusted input. A malformed record is
// reported exactly like a wrong password.
package password

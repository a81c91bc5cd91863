// Package identity is the credential-store boundary for libra.
//
// It defines the Principal record the login flow authenticates against and
// the Store contract used to read principals and persist password hashes.
// Two implementations are provided: MemoryStore for single-process/dev
// runs and PostgresStore over pgx.
//
// This package never hashes or verifies passwords; callers store what
// security/password produces.
package identity

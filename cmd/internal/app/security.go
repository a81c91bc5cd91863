package app

import (
	"fmt"

	"libra/cmd/security/password"
	"libra/cmd/security/token"
)

// loadSecurityConfig reads the hashing and token settings and enforces
// libra's startup policy.
//
// Fail-fast: a misconfigured scheme must not silently fall back to a weaker one.
func loadSecurityConfig(cfg Config) (password.Config, token.Config, error) {
	pw, err := password.FromEnv()
	if err != nil {
		return password.Config{}, token.Config{}, fmt.Errorf("password config: %w", err)
	}

	if cfg.RequireArgon2id && pw.Scheme != password.SchemeArgon2id {
		return password.Config{}, token.Config{}, fmt.Errorf(
			"security policy: LIBRA_REQUIRE_ARGON2ID=true but LIBRA_PASSWORD_SCHEME=%s", pw.Scheme)
	}

	tok, err := token.FromEnv()
	if err != nil {
		return password.Config{}, token.Config{}, fmt.Errorf("token config: %w", err)
	}

	return pw, tok, nil
}

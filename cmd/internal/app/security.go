package app

import "errors"

const minStrongSecretBytes = 32

// ValidateSecurityConfig enforces LinkUp's security policy at startup.
//
// Fail-fast is intentional: a server that silently accepts unverifiable
// tokens would let anyone impersonate anyone.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("security policy: LINKUP_JWT_SECRET is missing")
	}

	// Bytes, not runes: the secret is used as raw HMAC key material.
	if cfg.RequireStrongSecret && len(cfg.JWTSecret) < minStrongSecretBytes {
		return errors.New("security policy: LINKUP_REQUIRE_STRONG_SECRET=true but LINKUP_JWT_SECRET is too short (min 32 bytes)")
	}

	return nil
}

// Package pseudonym derives session salts and per-session pseudonyms.
//
// A pseudonym is SHA-256(rawToken || salt) where the salt is an HMAC of the
// class and session start under a server secret. The same card yields the same
// pseudonym within one session and unrelated pseudonyms across sessions.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	dErrors "tally/pkg/domain-errors"
)

// SaltSize is the length of a session salt in bytes.
const SaltSize = sha256.Size

// fieldSeparator keeps ("ab","c") and ("a","bc") from colliding.
const fieldSeparator = 0x1f

// Salt is a session-scoped salt.
type Salt [SaltSize]byte

// Hex returns the lowercase hex encoding used on the wire.
func (s Salt) Hex() string {
	return hex.EncodeToString(s[:])
}

// ParseSalt decodes a hex salt.
func ParseSalt(s string) (Salt, error) {
	var salt Salt
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(b) != SaltSize {
		return salt, dErrors.New(dErrors.CodeValidation, "salt must be 64 hex characters")
	}
	copy(salt[:], b)
	return salt, nil
}

// Pseudonym is the lowercase hex SHA-256 digest identifying a person within one session.
type Pseudonym string

// PseudonymLength is the length of a hex encoded pseudonym.
const PseudonymLength = 2 * sha256.Size

func (p Pseudonym) String() string { return string(p) }

// Short returns a prefix safe for log lines.
func (p Pseudonym) Short() string {
	if len(p) <= 12 {
		return string(p)
	}
	return string(p[:12])
}

// ParsePseudonym validates a 64 character hex pseudonym, normalising case.
func ParsePseudonym(s string) (Pseudonym, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != PseudonymLength {
		return "", dErrors.New(dErrors.CodeValidation, "pseudonym must be 64 hex characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "pseudonym must be 64 hex characters")
	}
	return Pseudonym(s), nil
}

// DeriveSalt computes HMAC-SHA256(secretKey, classID || 0x1f || sessionStartISO).
// An empty key still yields a salt; configuration reports it as degraded.
func DeriveSalt(secretKey []byte, classID, sessionStartISO string) Salt {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(classID))
	mac.Write([]byte{fieldSeparator})
	mac.Write([]byte(sessionStartISO))

	var salt Salt
	copy(salt[:], mac.Sum(nil))
	return salt
}

// ComputeHash returns SHA-256(rawToken || salt) as a pseudonym.
func ComputeHash(rawToken string, salt Salt) Pseudonym {
	h := sha256.New()
	h.Write([]byte(rawToken))
	h.Write(salt[:])
	return Pseudonym(hex.EncodeToString(h.Sum(nil)))
}

// Deriver binds the server secret so callers never handle it directly.
type Deriver struct {
	secretKey []byte
	degraded  bool
}

// DevelopmentKey is the built-in key used when none is configured outside production.
const DevelopmentKey = "tally-development-secret-do-not-use"

// NewDeriver copies secretKey. An empty or development key marks the deriver degraded.
func NewDeriver(secretKey []byte) *Deriver {
	key := make([]byte, len(secretKey))
	copy(key, secretKey)
	return &Deriver{
		secretKey: key,
		degraded:  len(key) == 0 || string(key) == DevelopmentKey,
	}
}

// Salt derives the salt for one session.
func (d *Deriver) Salt(classID, sessionStartISO string) Salt {
	return DeriveSalt(d.secretKey, classID, sessionStartISO)
}

// Pseudonym derives the salt and hashes rawToken with it.
func (d *Deriver) Pseudonym(rawToken, classID, sessionStartISO string) Pseudonym {
	return ComputeHash(rawToken, d.Salt(classID, sessionStartISO))
}

// Degraded reports whether the deriver runs on an empty or development key.
func (d *Deriver) Degraded() bool {
	return d.degraded
}

// SecretKey returns a copy of the bound key.
func (d *Deriver) SecretKey() []byte {
	key := make([]byte, len(d.secretKey))
	copy(key, d.secretKey)
	return key
}

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 work factor written into new credentials.
	DefaultIterations = 10000

	saltBytes     = 16
	derivedKeyLen = 64
	maxIterations = 10_000_000
	credentialSep = ":"
)

// Scheme identifies how a stored credential is verified.
type Scheme int

const (
	// SchemeLegacySHA256 is a bare hex SHA-256 digest without salt. It is
	// only ever read, never written.
	SchemeLegacySHA256 Scheme = iota + 1
	// SchemePBKDF2SHA512 is "iterations:saltHex:hashHex".
	SchemePBKDF2SHA512
)

func (s Scheme) String() string {
	switch s {
	case SchemeLegacySHA256:
		return "sha256"
	case SchemePBKDF2SHA512:
		return "pbkdf2-sha512"
	default:
		return "unknown"
	}
}

var errMalformedCredential = errors.New("malformed credential")

// Credential is a parsed stored password representation.
//
// Salt is kept as the hex text found in storage: the key derivation consumes
// those characters as-is, not the decoded bytes, which is what existing rows
// were written with.
type Credential struct {
	Scheme     Scheme
	Iterations int
	Salt       string
	Digest     []byte
}

// ParseCredential resolves a stored value into its scheme. A value without
// ':' is a legacy digest; anything else must be a well-formed PBKDF2 triple.
func ParseCredential(stored string) (Credential, error) {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return Credential{}, errMalformedCredential
	}
	if !strings.Contains(stored, credentialSep) {
		digest, err := hex.DecodeString(stored)
		if err != nil || len(digest) != sha256.Size {
			return Credential{}, errMalformedCredential
		}
		return Credential{Scheme: SchemeLegacySHA256, Digest: digest}, nil
	}

	parts := strings.Split(stored, credentialSep)
	if len(parts) != 3 {
		return Credential{}, errMalformedCredential
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations < 1 || iterations > maxIterations {
		return Credential{}, errMalformedCredential
	}
	if parts[1] == "" {
		return Credential{}, errMalformedCredential
	}
	digest, err := hex.DecodeString(parts[2])
	if err != nil || len(digest) != derivedKeyLen {
		return Credential{}, errMalformedCredential
	}
	return Credential{
		Scheme:     SchemePBKDF2SHA512,
		Iterations: iterations,
		Salt:       parts[1],
		Digest:     digest,
	}, nil
}

// String renders the credential in its storage format.
func (c Credential) String() string {
	switch c.Scheme {
	case SchemeLegacySHA256:
		return hex.EncodeToString(c.Digest)
	case SchemePBKDF2SHA512:
		return strconv.Itoa(c.Iterations) + credentialSep + c.Salt + credentialSep + hex.EncodeToString(c.Digest)
	default:
		return ""
	}
}

// Matches reports whether password produces the stored digest.
func (c Credential) Matches(password string) bool {
	var candidate []byte
	switch c.Scheme {
	case SchemeLegacySHA256:
		sum := sha256.Sum256([]byte(password))
		candidate = sum[:]
	case SchemePBKDF2SHA512:
		candidate = deriveKey(password, c.Salt, c.Iterations)
	default:
		return false
	}
	if len(c.Digest) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(candidate, c.Digest) == 1
}

func deriveKey(password, salt string, iterations int) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), iterations, derivedKeyLen, sha512.New)
}

// HashPassword derives a new PBKDF2 credential with a fresh random salt.
func HashPassword(password string) (string, error) {
	return hashPassword(password, DefaultIterations)
}

func hashPassword(password string, iterations int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	cred := Credential{
		Scheme:     SchemePBKDF2SHA512,
		Iterations: iterations,
		Salt:       salt,
		Digest:     deriveKey(password, salt, iterations),
	}
	return cred.String(), nil
}

// VerifyPassword compares a plaintext candidate with a stored credential.
// Malformed stored values simply do not match.
func VerifyPassword(password, stored string) bool {
	cred, err := ParseCredential(stored)
	if err != nil {
		return false
	}
	return cred.Matches(password)
}

// NeedsRehash reports whether stored should be replaced by a credential
// derived with the given work factor.
func NeedsRehash(stored string, iterations int) bool {
	cred, err := ParseCredential(stored)
	if err != nil {
		return false
	}
	return cred.Scheme == SchemeLegacySHA256 || cred.Iterations < iterations
}

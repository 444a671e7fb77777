// Package credentials hashes and verifies user passwords with Argon2id,
// the password-hashing primitive from golang.org/x/crypto, per the
// spec's "per-deployment salt" requirement plus an additional
// deployment-wide pepper mixed in before hashing.
package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id tuning. These are conservative interactive-login parameters,
// not the higher-memory settings appropriate for an offline KDF.
const (
	saltLen     = 16
	argonTime   = 1
	argonMemory = 64 * 1024 // KiB
	argonThread = 4
	argonKeyLen = 32
)

// Hash derives a salted, peppered Argon2id hash for password, encoding
// the salt alongside the hash as "salt$hash" (both base64) so Verify
// needs nothing but the stored string and the deployment pepper.
func Hash(password, pepper string) (string, error) {
	if password == "" {
		return "", errors.New("credentials: password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credentials: read salt: %w", err)
	}

	sum := derive(password, pepper, salt)
	return encode(salt, sum), nil
}

// Verify reports whether password (with the deployment pepper) matches
// stored, a string previously produced by Hash. Comparison is
// constant-time to avoid leaking hash-prefix information via timing.
func Verify(stored, password, pepper string) (bool, error) {
	salt, sum, err := decode(stored)
	if err != nil {
		return false, err
	}
	candidate := derive(password, pepper, salt)
	return subtle.ConstantTimeCompare(candidate, sum) == 1, nil
}

func derive(password, pepper string, salt []byte) []byte {
	return argon2.IDKey([]byte(password+pepper), salt, argonTime, argonMemory, argonThread, argonKeyLen)
}

func encode(salt, sum []byte) string {
	return base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(sum)
}

func decode(stored string) (salt, sum []byte, err error) {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return nil, nil, errors.New("credentials: malformed stored hash")
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("credentials: decode salt: %w", err)
	}
	sum, err = base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("credentials: decode hash: %w", err)
	}
	return salt, sum, nil
}

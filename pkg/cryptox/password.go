package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// BcryptCost is the work factor used for new bcrypt hashes.
const BcryptCost = 10

// bcrypt only reads the first 72 bytes of its input.
const bcryptMaxLength = 72

// Argon2id parameters (OWASP minimums).
const (
	argonMemory      = 19 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonSaltLength  = 16
	argonKeyLength   = 32
)

var (
	ErrPasswordMismatch = errors.New("password does not match")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
	ErrMalformedHash    = errors.New("malformed password hash")
	ErrUnknownAlgorithm = errors.New("unknown password algorithm")
)

var algorithm atomic.Value

func init() {
	algorithm.Store(AlgorithmBcrypt)
}

// SetPasswordAlgorithm selects the algorithm used by HashPassword. Existing
// hashes keep verifying regardless of the selection.
func SetPasswordAlgorithm(name string) error {
	switch name {
	case AlgorithmBcrypt, AlgorithmArgon2id:
		algorithm.Store(name)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// PasswordAlgorithm returns the algorithm currently used for new hashes.
func PasswordAlgorithm() string {
	return algorithm.Load().(string)
}

// HashPassword hashes a plaintext password with the configured algorithm.
func HashPassword(password string) (string, error) {
	return HashPasswordWith(PasswordAlgorithm(), password)
}

// HashPasswordWith hashes a plaintext password with an explicit algorithm.
func HashPasswordWith(name, password string) (string, error) {
	switch name {
	case AlgorithmBcrypt:
		if len(password) > bcryptMaxLength {
			return "", ErrPasswordTooLong
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(hash), nil
	case AlgorithmArgon2id:
		return hashArgon2id(password)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// VerifyPassword compares a plaintext password against a stored hash. The
// algorithm is taken from the hash prefix. Any failure, including a malformed
// hash, is returned as an error.
func VerifyPassword(password, encodedHash string) error {
	switch {
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return ErrPasswordMismatch
		default:
			return fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2id(password, encodedHash)
	default:
		return ErrMalformedHash
	}
}

func hashArgon2id(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id parses $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func verifyArgon2id(password, encodedHash string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrMalformedHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if mem == 0 || iters == 0 || par == 0 {
		return fmt.Errorf("%w: zero parameter", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return fmt.Errorf("%w: digest", ErrMalformedHash)
	}

	computed := argon2.IDKey([]byte(password), salt, iters, mem, par, uint32(len(expected))) // #nosec G115
	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

package passwords

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type bcryptStrategy struct{}

func (bcryptStrategy) Name() string { return "bcrypt" }

func (bcryptStrategy) Verify(plain string, record Record) (Result, error) {
	hash := record.Hash
	switch {
	case strings.HasPrefix(hash, "$2y$"):
		hash = "$2a$" + strings.TrimPrefix(hash, "$2y$")
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"):
	default:
		return Inapplicable, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return Match, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return Mismatch, nil
	default:
		return Inapplicable, err
	}
}

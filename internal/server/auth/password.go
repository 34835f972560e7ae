package auth

import (
	"errors"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes passwords one way and checks candidates against a
// stored digest.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, digest string) bool
}

// BcryptHasher is a PasswordHasher on bcrypt. The salt is generated per call
// and embedded in the digest.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher clamps cost into bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", common.NewError(common.ErrValidation, "password is too long")
		}
		return "", err
	}
	return string(digest), nil
}

// Compare runs in constant time with respect to the digest contents. A
// malformed digest is reported as a mismatch.
func (h *BcryptHasher) Compare(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

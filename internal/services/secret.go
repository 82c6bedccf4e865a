package services

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier is the one hash-and-compare primitive shared by wallet
// passcodes and OTP codes.
type SecretVerifier interface {
	Hash(plain string) (string, error)
	Matches(plain, digest string) bool
}

type BcryptVerifier struct {
	Cost int
}

func NewBcryptVerifier() *BcryptVerifier {
	return &BcryptVerifier{Cost: bcrypt.DefaultCost}
}

func (v *BcryptVerifier) Hash(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), v.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %v", err)
	}
	return string(digest), nil
}

func (v *BcryptVerifier) Matches(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

package directory

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"

	"github.com/linfan/backend/internal/config"
)

// PasswordChecker seals ledger entry passwords for storage and checks
// supplied values against the stored secret.
type PasswordChecker interface {
	Seal(plain string) (string, error)
	Match(secret, supplied string) bool
}

// NewPasswordChecker returns the checker for a config password mode.
func NewPasswordChecker(mode string) PasswordChecker {
	if mode == config.PasswordModeBcrypt {
		return BcryptPasswords{Cost: bcrypt.DefaultCost}
	}
	return PlainPasswords{}
}

// PlainPasswords stores the password as given and compares for exact
// equality. This keeps ledgers created before hashing was available usable.
type PlainPasswords struct{}

func (PlainPasswords) Seal(plain string) (string, error) { return plain, nil }

func (PlainPasswords) Match(secret, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(supplied)) == 1
}

// BcryptPasswords stores salted bcrypt hashes.
type BcryptPasswords struct {
	Cost int
}

func (b BcryptPasswords) Seal(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), b.Cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptPasswords) Match(secret, supplied string) bool {
	return bcrypt.CompareHashAndPassword([]byte(secret), []byte(supplied)) == nil
}

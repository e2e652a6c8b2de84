package security

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is deliberately above the library default; password writes are
// rare enough that the extra latency does not matter.
const BcryptCost = 12

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether candidate matches hash. The candidate is
// never logged by any caller.
func VerifyPassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

const (
	passwordLower   = "abcdefghijkmnpqrstuvwxyz"
	passwordUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordDigits  = "23456789"
	passwordSymbols = "!@#$%^&*"
)

// GeneratePassword returns a random temporary password with at least one
// character from each class. Used by admin provisioning when no password is
// supplied; the result is handed to the admin once and never persisted.
func GeneratePassword(length int) (string, error) {
	if length < 8 {
		length = 12
	}
	classes := []string{passwordLower, passwordUpper, passwordDigits, passwordSymbols}
	all := passwordLower + passwordUpper + passwordDigits + passwordSymbols

	buf := make([]byte, length)
	for i, class := range classes {
		c, err := randomByte(class)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}
	for i := len(classes); i < length; i++ {
		c, err := randomByte(all)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}
	// Fisher-Yates so the guaranteed class characters are not predictable
	// by position.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

func randomByte(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

package password

import "golang.org/x/crypto/bcrypt"

// Hash returns a bcrypt hash of the given password at the default cost.
func Hash(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Compare reports whether plain matches the stored bcrypt hash.
// bcrypt's comparison is constant-time over the derived key.
func Compare(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

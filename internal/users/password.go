package users

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// tempPasswordAlphabet leaves out characters that are easy to misread
// (0/O, 1/l/I).
const tempPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

const tempPasswordLength = 12

// GenerateTempPassword returns a random password for first logins and resets.
func GenerateTempPassword() (string, error) {
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	out := make([]byte, tempPasswordLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("users: generate password: %w", err)
		}
		out[i] = tempPasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}

package requests

import (
	"crypto/rand"
	"math/big"
)

// KeyLength is the number of characters in a generated request key.
const KeyLength = 20

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// KeyGenerator produces request keys.
type KeyGenerator func() (string, error)

// GenerateKey returns a random alphanumeric key of KeyLength characters.
func GenerateKey() (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	b := make([]byte, KeyLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = keyAlphabet[n.Int64()]
	}
	return string(b), nil
}

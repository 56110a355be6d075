package core

import (
	"crypto/rand"
	"math/big"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// KeyGenerator produces candidate key strings.
type KeyGenerator func() (string, error)

// GenerateKey returns a random key of models.GeneratedKeyLength characters drawn
// uniformly from the alphanumeric alphabet.
func GenerateKey() (string, error) {
	size := big.NewInt(int64(len(keyAlphabet)))
	buf := make([]byte, models.GeneratedKeyLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return string(buf), nil
}

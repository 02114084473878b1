package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Generate returns root joined with n random bytes, hex encoded.
// Used for broker client identifiers that must survive reboots once stored.
func Generate(root string, n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", root, hex.EncodeToString(bytes)), nil
}

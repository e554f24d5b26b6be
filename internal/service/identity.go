package service

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashIdentity derives the store key for a raw client address. The salt
// keeps the mapping one-way for anyone without access to deployment config,
// so raw addresses never appear in the store.
func HashIdentity(salt, rawAddr string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(rawAddr))
	return "ip:" + hex.EncodeToString(h.Sum(nil))
}

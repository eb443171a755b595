// Package cryptox implements encryption at rest for premium binary assets:
// AES-256-GCM file transforms with one symmetric key per content id. Keys are
// created lazily on first encryption and deleted when entitlement to the
// content is revoked, so losing one key forfeits exactly one asset.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

const (
	// EncryptedSuffix marks a file holding ciphertext.
	EncryptedSuffix = ".enc"
	// DecryptedSuffix marks a temporary plaintext copy made for playback.
	DecryptedSuffix = ".dec.tmp"

	keySize  = 32
	saltSize = 16
)

// IsEncrypted reports whether path names an encrypted asset.
func IsEncrypted(path string) bool {
	return strings.HasSuffix(path, EncryptedSuffix)
}

// IsDecryptedTemp reports whether path names a temporary decrypted copy.
func IsDecryptedTemp(path string) bool {
	return strings.HasSuffix(path, DecryptedSuffix)
}

// deriveKey stretches contentID and a creation timestamp into an AES-256 key
// using argon2id with a random per-key salt.
func deriveKey(contentID string, createdAt time.Time, salt []byte) []byte {
	material := []byte(contentID + "|" + strconv.FormatInt(createdAt.UnixNano(), 10))
	return argon2.IDKey(material, salt, 1, 64*1024, 4, keySize)
}

// seal encrypts plaintext with AES-256-GCM. The random nonce is prepended to
// the returned ciphertext.
func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts data produced by seal.
func open(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(data) < aesgcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:aesgcm.NonceSize()], data[aesgcm.NonceSize():]

	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// Package cryptox implements the cryptographic primitives shared by the
// credential guard and the record vault: AES-GCM sealing of sensitive bytes,
// argon2id credential hashing, and content fingerprinting.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/lifexhealth/medvault/internal/common"
)

// KeySize is the required length of the process-wide encryption key (AES-256).
const KeySize = 32

const saltSize = 16

var ErrMalformedCredentialHash = errors.New("malformed credential hash")

// Seal encrypts plaintext with AES-GCM under key, generating a fresh random
// 12-byte nonce per call. The nonce is prepended to the returned ciphertext,
// so sealing identical plaintext twice never yields identical output.
func Seal(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a ciphertext produced by Seal, authenticating it in the
// process. Tampered ciphertext fails authentication and returns an error.
func Open(sealed, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aesgcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:aesgcm.NonceSize()], sealed[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

// Digest returns the hex-encoded SHA-256 fingerprint of b.
func Digest(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// HashCredential derives an argon2id hash of secret with a random salt and
// encodes both as "saltHex$hashHex". The encoded form is what gets stored.
func HashCredential(secret []byte) (string, error) {
	salt := common.GenerateRandByteArray(saltSize)
	hash := argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
	return fmt.Sprintf("%s$%s", hex.EncodeToString(salt), hex.EncodeToString(hash)), nil
}

// VerifyCredential re-derives the hash of candidate under the salt embedded
// in encoded and compares in constant time.
func VerifyCredential(encoded string, candidate []byte) (bool, error) {
	salt, hash, err := decodeCredentialHash(encoded)
	if err != nil {
		return false, err
	}
	derived := argon2.IDKey(candidate, salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, derived) == 1, nil
}

func decodeCredentialHash(encoded string) (salt, hash []byte, err error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return nil, nil, ErrMalformedCredentialHash
	}
	salt, err = hex.DecodeString(parts[0])
	if err != nil {
		return nil, nil, ErrMalformedCredentialHash
	}
	hash, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, ErrMalformedCredentialHash
	}
	return salt, hash, nil
}

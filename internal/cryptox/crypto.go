// Package cryptox implements the ciphers the authenticator file format and
// the Steam login flow require: AES-256-CBC with a PBKDF2-SHA1 key for
// secret files, and RSA PKCS#1 v1.5 for the login password.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count used when the
	// manifest does not specify one. Fixed by the file format.
	DefaultIterations = 50000

	keySize  = 32
	saltSize = 8
	ivSize   = aes.BlockSize
)

var (
	ErrBadPadding    = errors.New("invalid pkcs7 padding")
	ErrBadCiphertext = errors.New("ciphertext is not a whole number of blocks")
)

// DeriveKey derives the AES key for a secret file from the user's passkey
// and the entry's salt. The file format mandates PBKDF2 with SHA-1.
func DeriveKey(passkey []byte, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(passkey, salt, iterations, keySize, sha1.New)
}

// GenerateSalt returns a new random salt for key derivation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// GenerateIV returns a new random AES-CBC initialization vector.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

// Encrypt encrypts plaintext with AES-256-CBC and returns the base64
// payload stored in a secret file.
func Encrypt(plaintext, key, iv []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt: base64 decode, AES-256-CBC decrypt, strip
// padding. A wrong key typically surfaces as ErrBadPadding.
func Decrypt(payload string, key, iv []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, ErrBadCiphertext
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, block.BlockSize())
}

// EncryptPassword encrypts a login password with Steam's RSA public key,
// given as hex modulus and exponent strings, and returns the base64 form
// the login endpoint expects.
func EncryptPassword(modulusHex, exponentHex string, password []byte) (string, error) {
	mod, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok {
		return "", fmt.Errorf("invalid rsa modulus %q", modulusHex)
	}
	exp, ok := new(big.Int).SetString(exponentHex, 16)
	if !ok {
		return "", fmt.Errorf("invalid rsa exponent %q", exponentHex)
	}
	pub := &rsa.PublicKey{N: mod, E: int(exp.Int64())}
	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, pub, password)
	if err != nil {
		return "", fmt.Errorf("rsa encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}

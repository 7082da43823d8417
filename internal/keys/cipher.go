package keys

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	envelopePrefix    = "keys.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

var ErrDecrypt = errors.New("keys: decrypt private key")

// Cipher seals private key material under the process master key.
type Cipher struct {
	key []byte
}

type envelope struct {
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ct"`
}

// NewCipher derives a 256-bit AES key from master. Masters that are not
// already 32 bytes are hashed with SHA-256.
func NewCipher(master []byte) (*Cipher, error) {
	master = bytes.TrimSpace(master)
	if len(master) == 0 {
		return nil, errors.New("keys: master key is required")
	}
	key := make([]byte, 32)
	if len(master) == 32 {
		copy(key, master)
	} else {
		sum := sha256.Sum256(master)
		copy(key, sum[:])
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext with a fresh nonce. aad binds the ciphertext to its
// owning record so an envelope cannot be swapped between rows.
func (c *Cipher) Seal(plaintext, aad []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("keys: plaintext is required")
	}
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("keys: nonce generation failed: %w", err)
	}
	data, err := json.Marshal(envelope{
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, aad)),
	})
	if err != nil {
		return "", fmt.Errorf("keys: encode envelope: %w", err)
	}
	return envelopePrefix + string(data), nil
}

// Open reverses Seal. Any tampering, wrong master key or wrong aad yields ErrDecrypt.
func (c *Cipher) Open(sealed string, aad []byte) ([]byte, error) {
	payload, ok := strings.CutPrefix(strings.TrimSpace(sealed), envelopePrefix)
	if !ok {
		return nil, fmt.Errorf("%w: invalid envelope prefix", ErrDecrypt)
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrDecrypt, err)
	}
	if env.Algorithm != envelopeAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrDecrypt, env.Algorithm)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", ErrDecrypt, err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrDecrypt, err)
	}
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length", ErrDecrypt)
	}
	plaintext, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("keys: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keys: create gcm: %w", err)
	}
	return gcm, nil
}

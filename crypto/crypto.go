// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

// Package crypto implements authenticated encryption of secrets at rest
// (spec section 4.B). The ciphertext format is self-describing: a version
// byte, followed by a fresh nonce, followed by the AEAD sealed box. The
// version byte lets us migrate algorithms later without breaking existing
// rows.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	temperrors "github.com/temps-platform/control-plane/errors"
)

const (
	keySize = 32

	// versionAESGCM is the only algorithm implemented today. A future
	// migration would introduce versionN and dispatch on it in Decrypt.
	versionAESGCM byte = 1
)

// EncryptionService authenticates and encrypts byte strings under a single
// process-wide key, read once at init per the "Global mutable state" note
// in spec section 9.
type EncryptionService struct {
	key [keySize]byte
}

// NewFromHexKey builds a service from a 64-character hex-encoded 32 byte key.
func NewFromHexKey(hexKey string) (*EncryptionService, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding hex master key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", keySize, len(raw))
	}
	svc := &EncryptionService{}
	copy(svc.key[:], raw)
	return svc, nil
}

// scryptSalt is fixed and public: the master secret is the passphrase
// itself, not the salt, and scrypt is only used to stretch a
// human-memorable passphrase into a uniformly random 32 byte key.
var scryptSalt = []byte("temps-control-plane-kdf-salt-v1")

// NewFromPassphrase derives a key from an operator-supplied passphrase.
func NewFromPassphrase(passphrase string) (*EncryptionService, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	derived, err := scrypt.Key([]byte(passphrase), scryptSalt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	svc := &EncryptionService{}
	copy(svc.key[:], derived)
	return svc, nil
}

func (s *EncryptionService) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptBytes authenticates and encrypts plaintext, returning a
// self-describing envelope: version || nonce || ciphertext+tag.
func (s *EncryptionService) EncryptBytes(plaintext []byte) ([]byte, error) {
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 1+len(nonce)+len(sealed))
	out = append(out, versionAESGCM)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// DecryptBytes reverses EncryptBytes. Any authentication or format failure
// is reported as an opaque error; callers that need structured fields wrap
// it into errors.DecryptionFailed themselves (see DecryptParam).
func (s *EncryptionService) DecryptBytes(envelope []byte) ([]byte, error) {
	if len(envelope) < 1 {
		return nil, fmt.Errorf("ciphertext too short")
	}
	version := envelope[0]
	if version != versionAESGCM {
		return nil, fmt.Errorf("unsupported ciphertext version %d", version)
	}
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	rest := envelope[1:]
	if len(rest) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// EncryptString is the string-oriented convenience wrapper, returning a
// hex-encoded envelope suitable for storage in a text column.
func (s *EncryptionService) EncryptString(plaintext string) (string, error) {
	raw, err := s.EncryptBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// DecryptString reverses EncryptString.
func (s *EncryptionService) DecryptString(ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding hex ciphertext: %w", err)
	}
	plaintext, err := s.DecryptBytes(raw)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptParam decrypts a named parameter belonging to a service, returning
// the spec's typed errors.DecryptionFailed on any failure (4.B contract:
// failure to decrypt is never silently recovered).
func (s *EncryptionService) DecryptParam(serviceID, paramName, ciphertext string) (string, error) {
	plaintext, err := s.DecryptString(ciphertext)
	if err != nil {
		return "", &temperrors.DecryptionFailed{ServiceID: serviceID, ParamName: paramName}
	}
	return plaintext, nil
}

package kvstore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealedSaltKey  = "kvstore/sealed-salt"
	sealedSaltSize = 16
	sealedPrefix   = "SFSEAL1\n"

	sealedKDFTime    = uint32(2)
	sealedKDFMemKB   = uint32(64 * 1024)
	sealedKDFThreads = uint8(1)
)

var ErrSealBroken = errors.New("kvstore: sealed value failed authentication")

// Sealed encrypts every value written to the inner store. The key name is bound as
// associated data, so a ciphertext copied under another key does not open.
type Sealed struct {
	inner Store
	key   []byte
}

func NewSealed(inner Store, passphrase string) (*Sealed, error) {
	if inner == nil {
		return nil, errors.New("kvstore: sealed store needs an inner store")
	}
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("kvstore: sealed store needs a passphrase")
	}
	salt, err := inner.Read(sealedSaltKey)
	switch {
	case errors.Is(err, ErrAbsent):
		salt = make([]byte, sealedSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		if err := inner.Write(sealedSaltKey, salt); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case len(salt) != sealedSaltSize:
		return nil, fmt.Errorf("%w: salt has %d bytes", ErrSealBroken, len(salt))
	}
	key := argon2.IDKey([]byte(passphrase), salt, sealedKDFTime, sealedKDFMemKB, sealedKDFThreads, chacha20poly1305.KeySize)
	return &Sealed{inner: inner, key: key}, nil
}

func (s *Sealed) Read(key string) ([]byte, error) {
	if key == sealedSaltKey {
		return nil, ErrInvalidKey
	}
	raw, err := s.inner.Read(key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, []byte(sealedPrefix)) {
		return nil, ErrSealBroken
	}
	raw = raw[len(sealedPrefix):]
	if len(raw) < chacha20poly1305.NonceSizeX {
		return nil, ErrSealBroken
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, ErrSealBroken
	}
	return plaintext, nil
}

func (s *Sealed) Write(key string, value []byte) error {
	if key == sealedSaltKey {
		return ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	out := make([]byte, 0, len(sealedPrefix)+len(nonce)+len(value)+aead.Overhead())
	out = append(out, sealedPrefix...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, value, []byte(key))
	return s.inner.Write(key, out)
}

func (s *Sealed) Close() error {
	for i := range s.key {
		s.key[i] = 0
	}
	return s.inner.Close()
}

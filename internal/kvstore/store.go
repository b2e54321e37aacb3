// Package kvstore provides the durable key-value backing store shared by the identity
// store and the feed registry. Every backend is crash-safe at the granularity of one key.
package kvstore

import (
	"errors"
	"strings"
)

var (
	ErrAbsent      = errors.New("kvstore: key is absent")
	ErrUnavailable = errors.New("kvstore: backing store unavailable")
	ErrInvalidKey  = errors.New("kvstore: invalid key")
	ErrClosed      = errors.New("kvstore: store is closed")
)

// Store is a synchronous durable map. Read returns ErrAbsent for missing keys.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	Close() error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsRune(key, 0) {
		return ErrInvalidKey
	}
	return nil
}

package identity

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
)

var (
	ErrInvalidKeyPair   = errors.New("invalid identity key pair")
	ErrInvalidPublicKey = errors.New("invalid public key encoding")
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
)

// KeyPair is an ed25519 signing identity. SecretKey is the 64-byte expanded form whose
// second half is PublicKey.
type KeyPair struct {
	PublicKey ed25519.PublicKey
	SecretKey ed25519.PrivateKey
}

// Author is the stable text form of the public key used in posts and follow lists.
func (k KeyPair) Author() string {
	return EncodePublicKey(k.PublicKey)
}

func (k KeyPair) Validate() error {
	if len(k.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key has %d bytes", ErrInvalidKeyPair, len(k.PublicKey))
	}
	if len(k.SecretKey) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: secret key has %d bytes", ErrInvalidKeyPair, len(k.SecretKey))
	}
	derived := ed25519.NewKeyFromSeed(k.SecretKey.Seed()).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, k.PublicKey) {
		return fmt.Errorf("%w: secret key does not yield public key", ErrInvalidKeyPair)
	}
	return nil
}

func (k KeyPair) clone() KeyPair {
	return KeyPair{
		PublicKey: append(ed25519.PublicKey(nil), k.PublicKey...),
		SecretKey: append(ed25519.PrivateKey(nil), k.SecretKey...),
	}
}

// Outcome reports which path LoadOrCreate took.
type Outcome int

const (
	OutcomeLoaded Outcome = iota
	OutcomeCreated
	// OutcomeRecovered means the stored identity was undecodable and a new one replaced it.
	// The previous public identity is gone.
	OutcomeRecovered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoaded:
		return "loaded"
	case OutcomeCreated:
		return "created"
	case OutcomeRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

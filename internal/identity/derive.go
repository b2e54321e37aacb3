package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoSigning = "signfeed/identity/signing/v1"

// Generate creates a fresh identity from 256 bits of entropy and returns it with its
// backup mnemonic.
func Generate() (KeyPair, string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return KeyPair{}, "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return KeyPair{}, "", err
	}
	kp, err := FromMnemonic(mnemonic)
	if err != nil {
		return KeyPair{}, "", err
	}
	return kp, mnemonic, nil
}

// FromMnemonic deterministically derives the key pair a backup phrase stands for.
func FromMnemonic(mnemonic string) (KeyPair, error) {
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return KeyPair{}, ErrInvalidMnemonic
	}
	seed, err := hkdfExpand(bip39.NewSeed(mnemonic, ""), hkdfInfoSigning, ed25519.SeedSize)
	if err != nil {
		return KeyPair{}, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{
		PublicKey: priv.Public().(ed25519.PublicKey),
		SecretKey: priv,
	}, nil
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

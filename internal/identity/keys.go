package identity

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

func EncodePublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// ParsePublicKey decodes an author string back into an ed25519 public key. Input is taken
// verbatim; callers trim user input first.
func ParsePublicKey(author string) (ed25519.PublicKey, error) {
	if author == "" {
		return nil, ErrInvalidPublicKey
	}
	raw, err := base58.Decode(author)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	// Reject non-canonical spellings so one key has exactly one author string.
	if base58.Encode(raw) != author {
		return nil, ErrInvalidPublicKey
	}
	return ed25519.PublicKey(raw), nil
}

// Fingerprint is a short display digest of an author key.
func Fingerprint(author string) string {
	h := blake2b.Sum256([]byte(author))
	return "fp1" + base58.Encode(h[:10])
}

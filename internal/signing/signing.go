// Package signing produces and checks tamper-evident posts.
package signing

import (
	"crypto/ed25519"
	"errors"
	"time"
	"unicode/utf8"

	"ipfs-social/go-backend/internal/identity"
	"ipfs-social/go-backend/internal/postcodec"
	"ipfs-social/go-backend/pkg/models"
)

var (
	ErrAuthorMismatch = errors.New("post author does not match signing key")
	ErrInvalidUTF8    = errors.New("post text is not valid UTF-8")
)

// Sign signs the canonical bytes of post. The post must name kp as its author.
func Sign(post models.Post, kp identity.KeyPair) (models.SignedPost, error) {
	if err := kp.Validate(); err != nil {
		return models.SignedPost{}, err
	}
	if !validText(post) {
		return models.SignedPost{}, ErrInvalidUTF8
	}
	if post.Author != kp.Author() {
		return models.SignedPost{}, ErrAuthorMismatch
	}
	return models.SignedPost{
		Post:      post,
		Signature: ed25519.Sign(kp.SecretKey, postcodec.CanonicalBytes(post)),
	}, nil
}

// Verify reports whether sp carries a valid signature by the key its author field names.
// It never fails: malformed input is simply not valid.
func Verify(sp models.SignedPost) bool {
	if !validText(sp.Post) {
		return false
	}
	pub, err := identity.ParsePublicKey(sp.Author)
	if err != nil {
		return false
	}
	if len(sp.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, postcodec.CanonicalBytes(sp.Post), sp.Signature)
}

// Canonical JSON would replace invalid bytes with U+FFFD, so distinct texts would share
// one signature.
func validText(post models.Post) bool {
	return utf8.ValidString(post.Content) && utf8.ValidString(post.Author)
}

// Signer signs content as one identity, stamping posts with its clock.
type Signer struct {
	keyPair identity.KeyPair
	now     func() time.Time
}

func NewSigner(kp identity.KeyPair, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{keyPair: kp, now: now}
}

func (s *Signer) Author() string {
	return s.keyPair.Author()
}

func (s *Signer) SignContent(content string) (models.SignedPost, error) {
	return Sign(models.Post{
		Content:   content,
		Author:    s.keyPair.Author(),
		Timestamp: s.now().UnixMilli(),
	}, s.keyPair)
}

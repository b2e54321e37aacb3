package identity

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"ipfs-social/go-backend/internal/kvstore"
)

const (
	storeKey           = "identity/keypair"
	storeRecordVersion = 1
)

var ErrMnemonicUnavailable = errors.New("identity has no backup mnemonic")

type storedKeyPair struct {
	Version   int    `json:"version"`
	PublicKey []byte `json:"public_key"`
	SecretKey []byte `json:"secret_key"`
	Mnemonic  string `json:"mnemonic,omitempty"`
}

// Store loads the local identity from the backing store, creating it on first use.
type Store struct {
	mu       sync.Mutex
	kv       kvstore.Store
	loaded   bool
	keyPair  KeyPair
	mnemonic string
	generate func() (KeyPair, string, error)
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv, generate: Generate}
}

// LoadOrCreate returns the persisted identity. An absent record creates one; a record that
// fails to decode or validate is replaced and reported as OutcomeRecovered. Errors from the
// backing store itself are returned unchanged, never treated as corruption.
func (s *Store) LoadOrCreate() (KeyPair, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.keyPair.clone(), OutcomeLoaded, nil
	}

	raw, err := s.kv.Read(storeKey)
	outcome := OutcomeCreated
	switch {
	case err == nil:
		kp, mnemonic, decodeErr := decodeRecord(raw)
		if decodeErr == nil {
			s.setLocked(kp, mnemonic)
			return kp.clone(), OutcomeLoaded, nil
		}
		outcome = OutcomeRecovered
	case errors.Is(err, kvstore.ErrAbsent):
	default:
		return KeyPair{}, 0, fmt.Errorf("read identity: %w", err)
	}

	kp, mnemonic, err := s.generate()
	if err != nil {
		return KeyPair{}, 0, fmt.Errorf("generate identity: %w", err)
	}
	if err := s.persistLocked(kp, mnemonic); err != nil {
		return KeyPair{}, 0, err
	}
	s.setLocked(kp, mnemonic)
	return kp.clone(), outcome, nil
}

// Restore replaces the local identity with the one derived from a backup phrase.
func (s *Store) Restore(mnemonic string) (KeyPair, error) {
	kp, err := FromMnemonic(mnemonic)
	if err != nil {
		return KeyPair{}, err
	}
	normalized := normalizeMnemonic(mnemonic)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(kp, normalized); err != nil {
		return KeyPair{}, err
	}
	s.setLocked(kp, normalized)
	return kp.clone(), nil
}

// Mnemonic returns the backup phrase of the loaded identity.
func (s *Store) Mnemonic() (string, error) {
	if _, _, err := s.LoadOrCreate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mnemonic == "" {
		return "", ErrMnemonicUnavailable
	}
	return s.mnemonic, nil
}

func (s *Store) setLocked(kp KeyPair, mnemonic string) {
	s.keyPair = kp.clone()
	s.mnemonic = mnemonic
	s.loaded = true
}

func (s *Store) persistLocked(kp KeyPair, mnemonic string) error {
	data, err := json.Marshal(storedKeyPair{
		Version:   storeRecordVersion,
		PublicKey: kp.PublicKey,
		SecretKey: kp.SecretKey,
		Mnemonic:  mnemonic,
	})
	if err != nil {
		return err
	}
	if err := s.kv.Write(storeKey, data); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}
	return nil
}

func decodeRecord(raw []byte) (KeyPair, string, error) {
	var rec storedKeyPair
	if err := json.Unmarshal(raw, &rec); err != nil {
		return KeyPair{}, "", err
	}
	if rec.Version != storeRecordVersion {
		return KeyPair{}, "", fmt.Errorf("unsupported identity record version %d", rec.Version)
	}
	kp := KeyPair{
		PublicKey: ed25519.PublicKey(rec.PublicKey),
		SecretKey: ed25519.PrivateKey(rec.SecretKey),
	}
	if err := kp.Validate(); err != nil {
		return KeyPair{}, "", err
	}
	if rec.Mnemonic != "" {
		derived, err := FromMnemonic(rec.Mnemonic)
		if err != nil || !derived.PublicKey.Equal(kp.PublicKey) {
			return KeyPair{}, "", fmt.Errorf("%w: mnemonic does not match key pair", ErrInvalidKeyPair)
		}
	}
	return kp, rec.Mnemonic, nil
}

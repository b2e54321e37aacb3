package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ipfs-social/go-backend/internal/kvstore"
)

const followSetKey = "feed/following"

// FollowSet is an immutable ordered set of followed author keys. Follow and Unfollow
// return a new set and leave the receiver untouched.
type FollowSet struct {
	keys []string
}

func NewFollowSet(keys ...string) FollowSet {
	var s FollowSet
	for _, k := range keys {
		s = s.Follow(k)
	}
	return s
}

func (s FollowSet) Follow(author string) FollowSet {
	author = strings.TrimSpace(author)
	if author == "" || s.Contains(author) {
		return s
	}
	next := make([]string, 0, len(s.keys)+1)
	next = append(next, s.keys...)
	return FollowSet{keys: append(next, author)}
}

func (s FollowSet) Unfollow(author string) FollowSet {
	author = strings.TrimSpace(author)
	if !s.Contains(author) {
		return s
	}
	next := make([]string, 0, len(s.keys)-1)
	for _, k := range s.keys {
		if k != author {
			next = append(next, k)
		}
	}
	return FollowSet{keys: next}
}

func (s FollowSet) Contains(author string) bool {
	for _, k := range s.keys {
		if k == author {
			return true
		}
	}
	return false
}

func (s FollowSet) Keys() []string {
	return append([]string{}, s.keys...)
}

func (s FollowSet) Len() int {
	return len(s.keys)
}

func (s FollowSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

func (s *FollowSet) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = NewFollowSet(keys...)
	return nil
}

// LoadFollowSet reads a follow set saved by SaveFollowSet; an absent key is an empty set.
func LoadFollowSet(kv kvstore.Store) (FollowSet, error) {
	raw, err := kv.Read(followSetKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrAbsent) {
			return FollowSet{}, nil
		}
		return FollowSet{}, err
	}
	var s FollowSet
	if err := json.Unmarshal(raw, &s); err != nil {
		return FollowSet{}, fmt.Errorf("decode follow set: %w", err)
	}
	return s, nil
}

func SaveFollowSet(kv kvstore.Store, s FollowSet) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return kv.Write(followSetKey, data)
}

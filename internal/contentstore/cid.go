package contentstore

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"ipfs-social/go-backend/pkg/models"
)

// RawAddress is the CIDv1 (raw codec, sha2-256) of data, the address Kubo returns for a
// single-block add with raw leaves.
func RawAddress(data []byte) (models.Address, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return models.Address(cid.NewCidV1(cid.Raw, sum).String()), nil
}

func parseAddress(addr models.Address) (cid.Cid, error) {
	c, err := cid.Decode(strings.TrimSpace(string(addr)))
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: malformed address %q", ErrNotFound, addr)
	}
	return c, nil
}

// checkIntegrity re-hashes data for raw-codec addresses. Other codecs wrap the payload in
// a DAG node and cannot be checked from the bytes alone.
func checkIntegrity(c cid.Cid, data []byte) error {
	if c.Type() != cid.Raw {
		return nil
	}
	got, err := c.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !got.Equals(c) {
		return fmt.Errorf("%w: content does not match address %s", ErrStoreUnavailable, c)
	}
	return nil
}

package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// PersistentHashLen is the length of the content hash embedded in
// persistable network payloads.
const PersistentHashLen = 20

// HashKind distinguishes how a payload hash was obtained.
type HashKind uint8

const (
	// HashSha256 is the SHA-256 of the canonically re-serialized payload.
	HashSha256 HashKind = iota + 1
	// HashPersistent is the 20-byte hash embedded in the payload itself.
	HashPersistent
)

// PayloadHash is the content address of a gossiped payload, used as the
// deduplication key. It is comparable and usable as a map key.
type PayloadHash struct {
	kind HashKind
	n    uint8
	sum  [sha256.Size]byte
}

// Kind reports how the hash was obtained.
func (h PayloadHash) Kind() HashKind { return h.kind }

// Bytes returns the hash digits.
func (h PayloadHash) Bytes() []byte { return h.sum[:h.n] }

// Hex renders the hash for logs.
func (h PayloadHash) Hex() string { return hex.EncodeToString(h.Bytes()) }

// IsZero reports whether the hash is unset.
func (h PayloadHash) IsZero() bool { return h.kind == 0 }

// Sha256PayloadHash hashes serialized payload bytes.
func Sha256PayloadHash(serialized []byte) PayloadHash {
	return PayloadHash{kind: HashSha256, n: sha256.Size, sum: sha256.Sum256(serialized)}
}

// Sha256FromSum wraps an already computed 32-byte SHA-256 digest, as carried
// by RefreshOfferMessage.
func Sha256FromSum(sum []byte) (PayloadHash, error) {
	if len(sum) != sha256.Size {
		return PayloadHash{}, fmt.Errorf("sha256 hash must be %d bytes, got %d", sha256.Size, len(sum))
	}
	h := PayloadHash{kind: HashSha256, n: sha256.Size}
	copy(h.sum[:], sum)
	return h, nil
}

// PersistentPayloadHash wraps the hash a persistable payload carries.
func PersistentPayloadHash(sum []byte) (PayloadHash, error) {
	if len(sum) != PersistentHashLen {
		return PayloadHash{}, fmt.Errorf("persistent hash must be %d bytes, got %d", PersistentHashLen, len(sum))
	}
	h := PayloadHash{kind: HashPersistent, n: PersistentHashLen}
	copy(h.sum[:], sum)
	return h, nil
}

// HashOfStoragePayload computes the content address of a storage payload:
// the SHA-256 of its canonical re-serialization. The encoding of a fixed
// struct is deterministic, so the hash is stable under round-trips.
func HashOfStoragePayload(p *StoragePayload) (PayloadHash, error) {
	serialized, err := msgpack.Marshal(p)
	if err != nil {
		return PayloadHash{}, fmt.Errorf("serialize storage payload: %w", err)
	}
	return Sha256PayloadHash(serialized), nil
}

// HashOfPersistable extracts the content address a persistable payload
// carries within itself.
func HashOfPersistable(p *PersistableNetworkPayload) (PayloadHash, error) {
	sum, ok := p.PersistentHash()
	if !ok {
		return PayloadHash{}, fmt.Errorf("persistable payload carries no hash")
	}
	return PersistentPayloadHash(sum)
}

package wire

import (
	"bytes"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func offerStoragePayload(id string) StoragePayload {
	return StoragePayload{OfferPayload: &OfferPayload{
		ID:                  id,
		Direction:           DirectionBuy,
		Price:               90000000,
		Amount:              100000000,
		BaseCurrencyCode:    "BTC",
		CounterCurrencyCode: "EUR",
		PaymentMethodID:     "SEPA",
		Date:                1564140000000,
	}}
}

func TestStoragePayloadHashDeterministic(t *testing.T) {
	p := offerStoragePayload("offer-1")
	h1, err := HashOfStoragePayload(&p)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashOfStoragePayload(&p)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash is not deterministic: %s != %s", h1.Hex(), h2.Hex())
	}
	if h1.Kind() != HashSha256 || len(h1.Bytes()) != 32 {
		t.Errorf("unexpected hash shape: kind %d, %d bytes", h1.Kind(), len(h1.Bytes()))
	}
}

func TestStoragePayloadHashStableUnderRoundTrip(t *testing.T) {
	p := offerStoragePayload("offer-2")
	before, err := HashOfStoragePayload(&p)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	serialized, err := msgpack.Marshal(&p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded StoragePayload
	if err := msgpack.Unmarshal(serialized, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	after, err := HashOfStoragePayload(&decoded)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if before != after {
		t.Errorf("hash changed across round trip: %s != %s", before.Hex(), after.Hex())
	}
}

func TestDistinctPayloadsHashDifferently(t *testing.T) {
	a := offerStoragePayload("offer-a")
	b := offerStoragePayload("offer-b")
	ha, _ := HashOfStoragePayload(&a)
	hb, _ := HashOfStoragePayload(&b)
	if ha == hb {
		t.Errorf("distinct payloads share a hash")
	}
}

func TestPersistentHashExtraction(t *testing.T) {
	sum := bytes.Repeat([]byte{0x42}, PersistentHashLen)
	payload := PersistableNetworkPayload{TradeStatistics: &TradeStatistics{Hash: sum}}

	h, err := HashOfPersistable(&payload)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h.Kind() != HashPersistent {
		t.Errorf("expected persistent hash kind, got %d", h.Kind())
	}
	if !bytes.Equal(h.Bytes(), sum) {
		t.Errorf("hash digits changed: %x", h.Bytes())
	}
}

func TestPersistentHashLengthValidated(t *testing.T) {
	if _, err := PersistentPayloadHash(make([]byte, 19)); err == nil {
		t.Error("expected error for short persistent hash")
	}
	if _, err := Sha256FromSum(make([]byte, 31)); err == nil {
		t.Error("expected error for short sha256 sum")
	}
}

func TestEmptyPersistableHasNoHash(t *testing.T) {
	var payload PersistableNetworkPayload
	if _, err := HashOfPersistable(&payload); err == nil {
		t.Error("expected error for empty payload union")
	}
}

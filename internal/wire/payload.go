package wire

import (
	"net"
	"strconv"
)

// Kind tags a payload variant inside a NetworkEnvelope. The set of kinds is
// closed; unknown kinds decode to a nil message and are skipped upstream.
type Kind string

const (
	KindPing                      Kind = "ping"
	KindPong                      Kind = "pong"
	KindPreliminaryGetDataRequest Kind = "preliminary_get_data_request"
	KindGetUpdatedDataRequest     Kind = "get_updated_data_request"
	KindGetDataResponse           Kind = "get_data_response"
	KindBundleOfEnvelopes         Kind = "bundle_of_envelopes"
	KindAddData                   Kind = "add_data_message"
	KindRefreshOffer              Kind = "refresh_offer_message"
	KindAddPersistablePayload     Kind = "add_persistable_network_payload_message"
)

// Message is one payload variant of a NetworkEnvelope. Concrete types are
// registered in the kind registry so the codec can reconstruct them.
type Message interface {
	Kind() Kind
}

// kindRegistry maps each kind to a constructor for its concrete type.
// It stands in for the out-of-band schema that generates these types.
var kindRegistry = map[Kind]func() Message{
	KindPing:                      func() Message { return new(Ping) },
	KindPong:                      func() Message { return new(Pong) },
	KindPreliminaryGetDataRequest: func() Message { return new(PreliminaryGetDataRequest) },
	KindGetUpdatedDataRequest:     func() Message { return new(GetUpdatedDataRequest) },
	KindGetDataResponse:           func() Message { return new(GetDataResponse) },
	KindBundleOfEnvelopes:         func() Message { return new(BundleOfEnvelopes) },
	KindAddData:                   func() Message { return new(AddDataMessage) },
	KindRefreshOffer:              func() Message { return new(RefreshOfferMessage) },
	KindAddPersistablePayload:     func() Message { return new(AddPersistableNetworkPayloadMessage) },
}

// CorrelationOf returns the correlation id carried by a message: the nonce
// of a request, or the echoed request nonce of a response. Messages that
// take no part in request/response exchanges return false.
func CorrelationOf(m Message) (int32, bool) {
	switch m := m.(type) {
	case *Ping:
		return m.Nonce, true
	case *Pong:
		return m.RequestNonce, true
	case *PreliminaryGetDataRequest:
		return m.Nonce, true
	case *GetUpdatedDataRequest:
		return m.Nonce, true
	case *GetDataResponse:
		return m.RequestNonce, true
	}
	return 0, false
}

// NodeAddress identifies a peer endpoint. The host may be a resolvable name,
// an IP literal, or a hidden-service name passed verbatim to a SOCKS proxy.
type NodeAddress struct {
	HostName string `msgpack:"host_name"`
	Port     uint16 `msgpack:"port"`
}

func (a NodeAddress) String() string {
	return net.JoinHostPort(a.HostName, strconv.Itoa(int(a.Port)))
}

// Ping measures liveness and round-trip time.
type Ping struct {
	Nonce             int32 `msgpack:"nonce"`
	LastRoundTripTime int32 `msgpack:"last_round_trip_time"`
}

func (*Ping) Kind() Kind { return KindPing }

// Pong answers a Ping, echoing its nonce.
type Pong struct {
	RequestNonce int32 `msgpack:"request_nonce"`
}

func (*Pong) Kind() Kind { return KindPong }

// PreliminaryGetDataRequest is the first step of the bootstrap data load.
// It omits the sender address and advertises the local capability set.
type PreliminaryGetDataRequest struct {
	Nonce                 int32    `msgpack:"nonce"`
	ExcludedKeys          [][]byte `msgpack:"excluded_keys"`
	SupportedCapabilities []int32  `msgpack:"supported_capabilities"`
}

func (*PreliminaryGetDataRequest) Kind() Kind { return KindPreliminaryGetDataRequest }

// GetUpdatedDataRequest is the second step of the bootstrap data load. It
// carries the sender address and the keys already observed locally.
type GetUpdatedDataRequest struct {
	SenderNodeAddress NodeAddress `msgpack:"sender_node_address"`
	Nonce             int32       `msgpack:"nonce"`
	ExcludedKeys      [][]byte    `msgpack:"excluded_keys"`
}

func (*GetUpdatedDataRequest) Kind() Kind { return KindGetUpdatedDataRequest }

// GetDataResponse is a seed's reply to either data-load request. The
// request nonce must match the outstanding request to be accepted.
type GetDataResponse struct {
	RequestNonce                   int32                       `msgpack:"request_nonce"`
	IsGetUpdatedDataResponse       bool                        `msgpack:"is_get_updated_data_response"`
	DataSet                        []StorageEntryWrapper       `msgpack:"data_set"`
	SupportedCapabilities          []int32                     `msgpack:"supported_capabilities"`
	PersistableNetworkPayloadItems []PersistableNetworkPayload `msgpack:"persistable_network_payload_items"`
}

func (*GetDataResponse) Kind() Kind { return KindGetDataResponse }

// BundleOfEnvelopes nests several envelopes in one frame. The receiver
// delivers the inner messages in list order, as if each had arrived alone.
type BundleOfEnvelopes struct {
	Envelopes []NetworkEnvelope `msgpack:"envelopes"`
}

func (*BundleOfEnvelopes) Kind() Kind { return KindBundleOfEnvelopes }

// AddDataMessage gossips one storage entry to the network.
type AddDataMessage struct {
	Entry StorageEntryWrapper `msgpack:"entry"`
}

func (*AddDataMessage) Kind() Kind { return KindAddData }

// RefreshOfferMessage bumps the sequence number of a published offer
// without re-sending the full entry.
type RefreshOfferMessage struct {
	HashOfPayload  []byte `msgpack:"hash_of_payload"`
	SequenceNumber int64  `msgpack:"sequence_number"`
}

func (*RefreshOfferMessage) Kind() Kind { return KindRefreshOffer }

// AddPersistableNetworkPayloadMessage gossips one self-hashed payload.
type AddPersistableNetworkPayloadMessage struct {
	Payload PersistableNetworkPayload `msgpack:"payload"`
}

func (*AddPersistableNetworkPayloadMessage) Kind() Kind { return KindAddPersistablePayload }

// StorageEntryWrapper is the union of the two storage entry flavors carried
// by AddDataMessage and GetDataResponse. Exactly one member is set.
type StorageEntryWrapper struct {
	ProtectedStorageEntry        *ProtectedStorageEntry        `msgpack:"protected_storage_entry,omitempty"`
	ProtectedMailboxStorageEntry *ProtectedMailboxStorageEntry `msgpack:"protected_mailbox_storage_entry,omitempty"`
}

// Entry unwraps to the inner protected entry, reaching through the mailbox
// variant. Returns nil for an empty wrapper.
func (w StorageEntryWrapper) Entry() *ProtectedStorageEntry {
	if w.ProtectedStorageEntry != nil {
		return w.ProtectedStorageEntry
	}
	if w.ProtectedMailboxStorageEntry != nil {
		return w.ProtectedMailboxStorageEntry.Entry
	}
	return nil
}

// ProtectedStorageEntry wraps a gossiped payload with its owner signature
// and replication sequence number.
type ProtectedStorageEntry struct {
	StoragePayload    StoragePayload `msgpack:"storage_payload"`
	OwnerPubKeyBytes  []byte         `msgpack:"owner_pub_key_bytes"`
	SequenceNumber    int64          `msgpack:"sequence_number"`
	Signature         []byte         `msgpack:"signature"`
	CreationTimeStamp int64          `msgpack:"creation_time_stamp"` // unix millis
}

// ProtectedMailboxStorageEntry is the addressed variant of a storage entry.
type ProtectedMailboxStorageEntry struct {
	Entry                *ProtectedStorageEntry `msgpack:"entry"`
	ReceiversPubKeyBytes []byte                 `msgpack:"receivers_pub_key_bytes"`
}

// StoragePayload is the union of payload kinds a storage entry can carry.
// Only offers are routed further; other kinds are deduplicated and dropped.
type StoragePayload struct {
	OfferPayload *OfferPayload `msgpack:"offer_payload,omitempty"`
	Opaque       []byte        `msgpack:"opaque,omitempty"` // recognized but unrouted kinds, kept for hashing
}

// Offer direction values on the wire. Zero is reserved for decode errors.
const (
	DirectionBuy  int32 = 1
	DirectionSell int32 = 2
)

// OfferPayload describes one open offer as gossiped by its maker.
type OfferPayload struct {
	ID                    string `msgpack:"id"`
	Direction             int32  `msgpack:"direction"`
	Price                 int64  `msgpack:"price"`
	Amount                int64  `msgpack:"amount"`
	BaseCurrencyCode      string `msgpack:"base_currency_code"`
	CounterCurrencyCode   string `msgpack:"counter_currency_code"`
	PaymentMethodID       string `msgpack:"payment_method_id"`
	MakerPaymentAccountID string `msgpack:"maker_payment_account_id"`
	Date                  int64  `msgpack:"date"` // unix millis
}

// PersistableNetworkPayload is the union of self-hashed payload kinds.
// Every member embeds its own content hash.
type PersistableNetworkPayload struct {
	TradeStatistics *TradeStatistics `msgpack:"trade_statistics,omitempty"`
	Opaque          *OpaquePayload   `msgpack:"opaque,omitempty"`
}

// PersistentHash returns the embedded content hash of whichever member is
// set. Returns false for an empty union.
func (p PersistableNetworkPayload) PersistentHash() ([]byte, bool) {
	if p.TradeStatistics != nil {
		return p.TradeStatistics.Hash, true
	}
	if p.Opaque != nil {
		return p.Opaque.Hash, true
	}
	return nil, false
}

// OpaquePayload carries a persistable payload kind this node does not
// interpret. The hash still participates in deduplication.
type OpaquePayload struct {
	Hash []byte `msgpack:"hash"`
	Data []byte `msgpack:"data"`
}

// TradeStatistics reports one completed trade.
type TradeStatistics struct {
	BaseCurrency    string `msgpack:"base_currency"`
	CounterCurrency string `msgpack:"counter_currency"`
	Direction       int32  `msgpack:"direction"`
	TradePrice      int64  `msgpack:"trade_price"`
	TradeAmount     int64  `msgpack:"trade_amount"`
	TradeDate       int64  `msgpack:"trade_date"` // unix millis
	PaymentMethodID string `msgpack:"payment_method_id"`
	OfferID         string `msgpack:"offer_id"`
	Hash            []byte `msgpack:"hash"` // persistent content hash, 20 bytes
}

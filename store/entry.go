package store

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Entry is the tuple offered to a Store for every recorded event. It encodes
// as a four-element CBOR array: timestamp (unix nanoseconds), kind, subject,
// value.
type Entry struct {
	_         struct{} `cbor:",toarray"`
	Timestamp int64
	Kind      string
	Subject   string
	Value     any
}

// Time returns the entry's timestamp.
func (e Entry) Time() time.Time {
	return time.Unix(0, e.Timestamp)
}

// Record pairs an entry with its event index.
type Record struct {
	Index uint64
	Entry Entry
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// MarshalEntry serializes an Entry to CBOR bytes.
func MarshalEntry(e Entry) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEntry deserializes an Entry from CBOR bytes. Structured values
// come back as generic maps keyed by field name.
func UnmarshalEntry(data []byte) (Entry, error) {
	var e Entry
	if err := cborDecMode.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("store: unmarshal entry: %w", err)
	}
	return e, nil
}

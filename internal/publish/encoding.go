package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/srg/gasmon/internal/store"
)

// Encoding selects the wire format of published snapshots
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// ParseEncoding accepts "json" or "cbor" in any case
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case EncodingJSON, "":
		return EncodingJSON, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("unknown snapshot encoding %q (expected json or cbor)", s)
	}
}

// Snapshot is one published copy of the latest-value map.
type Snapshot struct {
	Peripheral string                   `json:"peripheral,omitempty" cbor:"peripheral,omitempty"`
	At         time.Time                `json:"at" cbor:"at"`
	Readings   map[string]store.Reading `json:"readings" cbor:"readings"`
}

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	snapshotEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	snapshotDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR decoder mode: %v", err))
	}
}

// Encode serializes a snapshot in the given encoding.
func Encode(enc Encoding, s Snapshot) ([]byte, error) {
	switch enc {
	case EncodingCBOR:
		return snapshotEncMode.Marshal(s)
	case EncodingJSON, "":
		return json.Marshal(s)
	default:
		return nil, fmt.Errorf("unknown snapshot encoding %q", enc)
	}
}

// Decode parses a snapshot produced by Encode
func Decode(enc Encoding, data []byte) (Snapshot, error) {
	var s Snapshot
	var err error
	switch enc {
	case EncodingCBOR:
		err = snapshotDecMode.Unmarshal(data, &s)
	case EncodingJSON, "":
		err = json.Unmarshal(data, &s)
	default:
		err = fmt.Errorf("unknown snapshot encoding %q", enc)
	}
	if err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

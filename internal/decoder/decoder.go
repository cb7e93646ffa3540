// Package decoder turns gas-sensor notification payloads into readings.
//
// A payload is a little-endian IEEE-754 single-precision float in its first
// four bytes. Peripherals may append trailing bytes; they are ignored.
package decoder

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/srg/gasmon/internal/fault"
)

// PayloadSize is the number of bytes a reading occupies
const PayloadSize = 4

// Precision is the number of decimals used when a reading is rendered
const Precision = 3

var ErrShortPayload = errors.New("payload shorter than 4 bytes")

// Decode decodes a base64 payload into a float32.
// Malformed base64 and payloads shorter than 4 bytes fail with fault.MalformedPayload.
func Decode(payload string) (float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, fault.MalformedPayload("", fmt.Errorf("invalid base64: %w", err))
	}
	return DecodeRaw(raw)
}

// DecodeRaw interprets the first 4 bytes of data as a little-endian float32.
func DecodeRaw(data []byte) (float32, error) {
	if len(data) < PayloadSize {
		return 0, fault.MalformedPayload("", fmt.Errorf("%w: got %d", ErrShortPayload, len(data)))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data[:PayloadSize])), nil
}

// Encode is the inverse of Decode.
func Encode(v float32) string {
	return base64.StdEncoding.EncodeToString(EncodeRaw(v))
}

// EncodeRaw returns the 4-byte little-endian representation of v.
func EncodeRaw(v float32) []byte {
	buf := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// Format renders v with fixed 3-decimal precision, e.g. 1 -> "1.000".
func Format(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', Precision, 32)
}

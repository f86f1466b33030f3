package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte which encodes as hexadecimal in json, as opposed to
// the default base64.
type HexBytes []byte

// String returns the hex representation of the bytes with the 0x prefix.
func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The 0x prefix is
// optional.
func (b *HexBytes) UnmarshalText(data []byte) error {
	s := strings.TrimPrefix(strings.TrimPrefix(string(data), "0x"), "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %w", err)
	}
	*b = decoded
	return nil
}

package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals JSON to a decimal string so
// values beyond 2^53 survive JavaScript clients. It also implements the CBOR
// (un)marshalers so it can be stored as an artifact.
type BigInt big.Int

// MarshalText returns the decimal string representation of the big number.
// If the receiver is nil, we return "0".
func (i *BigInt) MarshalText() ([]byte, error) {
	if i == nil {
		return []byte("0"), nil
	}
	return (*big.Int)(i).MarshalText()
}

// UnmarshalText parses the text representation into the big number.
func (i *BigInt) UnmarshalText(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	if _, ok := (*big.Int)(i).SetString(string(data), 10); !ok {
		return fmt.Errorf("invalid decimal number %q", data)
	}
	return nil
}

// MarshalCBOR encodes the number as a CBOR bignum.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(i.MathBigInt())
}

// UnmarshalCBOR decodes a CBOR bignum (or plain integer) into the number.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	bi := new(big.Int)
	if err := cbor.Unmarshal(data, bi); err != nil {
		return err
	}
	i.SetBigInt(bi)
	return nil
}

// String returns the decimal representation of the number.
func (i *BigInt) String() string {
	return i.MathBigInt().String()
}

// SetBigInt sets the value of the receiver to the value of the given big.Int.
func (i *BigInt) SetBigInt(bi *big.Int) *BigInt {
	(*big.Int)(i).Set(bi)
	return i
}

// SetUint64 sets the value of the receiver to x.
func (i *BigInt) SetUint64(x uint64) *BigInt {
	(*big.Int)(i).SetUint64(x)
	return i
}

// MathBigInt converts the receiver to a *big.Int copy. A nil receiver
// converts to zero.
func (i *BigInt) MathBigInt() *big.Int {
	if i == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(i))
}

// Equal reports whether both numbers hold the same value.
func (i *BigInt) Equal(j *BigInt) bool {
	return i.MathBigInt().Cmp(j.MathBigInt()) == 0
}

// NewBigInt returns a BigInt holding a copy of bi.
func NewBigInt(bi *big.Int) *BigInt {
	return new(BigInt).SetBigInt(bi)
}

package mbus

import (
	"fmt"
	"strings"
)

// DecodeBCD decodes a little endian packed BCD field. Byte 0 carries the two
// least significant digits, its low nibble being the units digit.
func DecodeBCD(data []byte) (uint64, error) {
	if len(data) > 9 {
		return 0, fmt.Errorf("%w: %d byte BCD", ErrUnsupportedFieldLength, len(data))
	}
	var value uint64
	for i := len(data) - 1; i >= 0; i-- {
		hi, lo := data[i]>>4, data[i]&0x0F
		if hi > 9 || lo > 9 {
			return 0, fmt.Errorf("%w: 0x%02X at byte %d", ErrInvalidBCD, data[i], i)
		}
		value = value*100 + uint64(hi)*10 + uint64(lo)
	}
	return value, nil
}

// EncodeBCD packs value into n little endian BCD bytes, dropping digits
// that do not fit.
func EncodeBCD(value uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		lo := byte(value % 10)
		value /= 10
		hi := byte(value % 10)
		value /= 10
		out[i] = hi<<4 | lo
	}
	return out
}

// decodeSignedBCD decodes a BCD field whose most significant nibble may be
// 0xF, which marks a negative value.
func decodeSignedBCD(data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	last := len(data) - 1
	if data[last]>>4 != 0x0F {
		v, err := DecodeBCD(data)
		return int64(v), err
	}
	tmp := make([]byte, len(data))
	copy(tmp, data)
	tmp[last] &= 0x0F
	v, err := DecodeBCD(tmp)
	return -int64(v), err
}

// DecodeManufacturer unpacks the 2 byte manufacturer field (low byte first)
// into its 3 letter code. Each 5 bit group encodes one letter, 1 being 'A'.
func DecodeManufacturer(byte1, byte2 byte) string {
	v := uint16(byte1) | uint16(byte2)<<8
	return string([]byte{
		byte((v>>10)&0x1F) + 64,
		byte((v>>5)&0x1F) + 64,
		byte(v&0x1F) + 64,
	})
}

// EncodeManufacturer packs a 3 letter manufacturer code, low byte first.
func EncodeManufacturer(code string) (byte, byte, error) {
	code = strings.ToUpper(code)
	if len(code) != 3 {
		return 0, 0, fmt.Errorf("manufacturer code must be 3 letters, got %q", code)
	}
	var v uint16
	for i := 0; i < 3; i++ {
		c := code[i]
		if c < 'A' || c > 'Z' {
			return 0, 0, fmt.Errorf("invalid manufacturer letter %q", c)
		}
		v = v<<5 | uint16(c-64)
	}
	return byte(v), byte(v >> 8), nil
}

// DecodeInt decodes a little endian binary integer of 1, 2, 3, 4, 6 or 8
// bytes. Signed values are sign extended from the highest byte present.
func DecodeInt(data []byte, signed bool) (int64, error) {
	v, err := DecodeUint(data)
	if err != nil {
		return 0, err
	}
	if !signed || len(data) == 8 {
		return int64(v), nil
	}
	shift := 64 - 8*uint(len(data))
	return int64(v<<shift) >> shift, nil
}

// DecodeUint decodes a little endian unsigned integer of 1, 2, 3, 4, 6 or 8
// bytes.
func DecodeUint(data []byte) (uint64, error) {
	switch len(data) {
	case 1, 2, 3, 4, 6, 8:
	default:
		return 0, fmt.Errorf("%w: %d byte integer", ErrUnsupportedFieldLength, len(data))
	}
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return v, nil
}

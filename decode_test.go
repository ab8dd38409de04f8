package mbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBCD(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint64
	}{
		{name: "two bytes", data: []byte{0x34, 0x12}, want: 1234},
		{name: "single byte", data: []byte{0x99}, want: 99},
		{name: "leading zeros", data: []byte{0x01, 0x00, 0x00, 0x00}, want: 1},
		{name: "identification number", data: []byte{0x78, 0x56, 0x34, 0x12}, want: 12345678},
		{name: "twelve digits", data: []byte{0x12, 0x90, 0x78, 0x56, 0x34, 0x12}, want: 123456789012},
		{name: "empty", data: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBCD(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBCD_InvalidNibble(t *testing.T) {
	_, err := DecodeBCD([]byte{0x3A, 0x12})
	assert.ErrorIs(t, err, ErrInvalidBCD)

	_, err = DecodeBCD([]byte{0x34, 0xF2})
	assert.ErrorIs(t, err, ErrInvalidBCD)

	_, err = DecodeBCD(make([]byte, 10))
	assert.ErrorIs(t, err, ErrUnsupportedFieldLength)
}

func TestEncodeBCD(t *testing.T) {
	assert.Equal(t, []byte{0x34, 0x12}, EncodeBCD(1234, 2))
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, EncodeBCD(12345678, 4))

	v, err := DecodeBCD(EncodeBCD(87654321, 4))
	require.NoError(t, err)
	assert.Equal(t, uint64(87654321), v)
}

func TestDecodeSignedBCD(t *testing.T) {
	v, err := decodeSignedBCD([]byte{0x34, 0xF2})
	require.NoError(t, err)
	assert.Equal(t, int64(-234), v)

	v, err = decodeSignedBCD([]byte{0x34, 0x12})
	require.NoError(t, err)
	assert.Equal(t, int64(1234), v)
}

func TestDecodeManufacturer(t *testing.T) {
	// groups 2, 17, 21
	assert.Equal(t, "BQU", DecodeManufacturer(0x35, 0x0A))
	// KAM is 0x2C2D, sent as 2D 2C
	assert.Equal(t, "KAM", DecodeManufacturer(0x2D, 0x2C))
	// ELS is 0x1593, sent as 93 15
	assert.Equal(t, "ELS", DecodeManufacturer(0x93, 0x15))
}

func TestEncodeManufacturer(t *testing.T) {
	for _, code := range []string{"BQU", "KAM", "ELS", "ZRI", "AAA", "ZZZ"} {
		b1, b2, err := EncodeManufacturer(code)
		require.NoError(t, err, code)
		assert.Equal(t, code, DecodeManufacturer(b1, b2))
	}

	b1, b2, err := EncodeManufacturer("bqu")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x35, 0x0A}, []byte{b1, b2})

	_, _, err = EncodeManufacturer("AB")
	assert.Error(t, err)
	_, _, err = EncodeManufacturer("A1B")
	assert.Error(t, err)
}

func TestDecodeInt(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		signed bool
		want   int64
	}{
		{name: "int8 negative", data: []byte{0xFF}, signed: true, want: -1},
		{name: "uint8", data: []byte{0xFF}, signed: false, want: 255},
		{name: "int16", data: []byte{0x34, 0x12}, signed: true, want: 0x1234},
		{name: "int16 negative", data: []byte{0x00, 0x80}, signed: true, want: -32768},
		{name: "uint16", data: []byte{0x00, 0x80}, signed: false, want: 32768},
		{name: "int24 negative", data: []byte{0xFE, 0xFF, 0xFF}, signed: true, want: -2},
		{name: "uint24", data: []byte{0xFE, 0xFF, 0xFF}, signed: false, want: 0xFFFFFE},
		{name: "int32", data: []byte{0x78, 0x56, 0x34, 0x12}, signed: true, want: 0x12345678},
		{name: "int32 negative", data: []byte{0x00, 0x00, 0x00, 0x80}, signed: true, want: -2147483648},
		{name: "int48 negative", data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, signed: true, want: -1},
		{name: "int64", data: []byte{0x01, 0, 0, 0, 0, 0, 0, 0}, signed: true, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInt(tt.data, tt.signed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInt_UnsupportedLength(t *testing.T) {
	for _, n := range []int{0, 5, 7, 9} {
		_, err := DecodeInt(make([]byte, n), true)
		assert.ErrorIs(t, err, ErrUnsupportedFieldLength, "length %d", n)
	}
}

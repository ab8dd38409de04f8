package mbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDIFDataLength(t *testing.T) {
	tests := []struct {
		dif  byte
		want int
	}{
		{0x00, 0},
		{0x01, 1},
		{0x02, 2},
		{0x03, 3},
		{0x04, 4},
		{0x05, 4},
		{0x06, 6},
		{0x07, 8},
		{0x08, 0},
		{0x09, 1},
		{0x0A, 2},
		{0x0B, 3},
		{0x0C, 4},
		{0x0D, DataLengthVariable},
		{0x0E, 6},
		{0x84, 4}, // extension bit and function field do not change the length
		{0x5B, 3},
		{0x0F, DataLengthToEnd},
		{0x1F, DataLengthToEnd},
		{0x2F, 0},
		{0x7F, 0},
		{0x3F, DataLengthUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DIFDataLength(tt.dif), "DIF 0x%02X", tt.dif)
	}
}

func TestParseDataRecords_Values(t *testing.T) {
	payload := []byte{
		0x02, 0xFD, 0x0A, 0x35, 0x0A, // manufacturer BQU
		0x04, 0x6D, 0x1E, 0x0A, 0x0F, 0x33, // 2024-03-15 10:30
		0x05, 0x2B, 0x00, 0x00, 0xC0, 0x3F, // 1.5 W as real
		0x02, 0x61, 0xF6, 0xFF, // -0.10 K
		0x0A, 0x5A, 0x34, 0xF2, // -23.4 °C, signed BCD
		0x0D, 0x13, 0xC2, 0x34, 0x12, // 1.234 m3, variable length BCD
		0x01, 0x7C, 0x03, 'h', 'W', 'k', 0x05, // 5 in plain text unit kWh
	}
	records, err := ParseDataRecords(payload)
	require.NoError(t, err)
	require.Len(t, records, 7)

	v, err := records[0].Value()
	require.NoError(t, err)
	assert.Equal(t, "manufacturer", v.Type)
	assert.Equal(t, "BQU", v.AsType)
	assert.Equal(t, "Manufacturer", records[0].Quantity().Name)

	v, err = records[1].Value()
	require.NoError(t, err)
	assert.Equal(t, "datetime", v.Type)
	assert.Equal(t, time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC), v.AsType)

	v, err = records[2].Value()
	require.NoError(t, err)
	assert.Equal(t, "real", v.Type)
	assert.InDelta(t, 1.5, v.Float64, 1e-9)
	assert.Equal(t, Quantity{Name: "Power", Unit: "W", Exponent: 0}, records[2].Quantity())

	v, err = records[3].Value()
	require.NoError(t, err)
	assert.Equal(t, int64(-10), v.AsType)
	assert.InDelta(t, -0.1, v.Float64, 1e-9)

	v, err = records[4].Value()
	require.NoError(t, err)
	assert.Equal(t, "bcd", v.Type)
	assert.InDelta(t, -23.4, v.Float64, 1e-9)

	v, err = records[5].Value()
	require.NoError(t, err)
	assert.Equal(t, "bcd", v.Type)
	assert.Equal(t, byte(0xC2), records[5].LVAR)
	assert.InDelta(t, 1.234, v.GetFloat64Value(3), 1e-9)

	assert.Equal(t, "kWh", records[6].PlainVIF)
	assert.Equal(t, Quantity{Name: "Plain text", Unit: "kWh"}, records[6].Quantity())
	v, err = records[6].Value()
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.AsType)
}

func TestParseDataRecords_SpecialFunctions(t *testing.T) {
	payload := []byte{
		0x2F, 0x2F, // idle filler
		0x01, 0x13, 0x05,
		0x7F,             // global readout request
		0x1F, 0xAA, 0xBB, // more records follow, rest is manufacturer data
	}
	records, err := ParseDataRecords(payload)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []byte{0x05}, records[0].Data)
	assert.Equal(t, DIFGlobalReadoutRequest, records[1].DIF)
	assert.Empty(t, records[1].Data)
	assert.Equal(t, DIFMoreRecordsFollow, records[2].DIF)
	assert.Equal(t, []byte{0xAA, 0xBB}, records[2].Data)
	assert.True(t, records[2].IsSpecial())
}

func TestParseDataRecords_ReservedDIF(t *testing.T) {
	records, skipped, err := parseDataRecords([]byte{0x3F, 0x01, 0x13, 0x05})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, byte(0x01), records[0].DIF)
}

func TestParseDataRecords_Truncated(t *testing.T) {
	records, err := ParseDataRecords([]byte{
		0x01, 0x13, 0x05,
		0x04, 0x13, 0x01, 0x00, // claims 4 bytes, 2 remain
	})
	assert.ErrorIs(t, err, ErrMalformedPayload)
	require.Len(t, records, 1)
	assert.Equal(t, []byte{0x05}, records[0].Data)

	_, err = ParseDataRecords([]byte{0x84})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseDataRecords([]byte{0x04, 0x93})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseDataRecords([]byte{0x01, 0x7C, 0x05, 'h'})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDataRecord_StorageTariffSubUnit(t *testing.T) {
	records, err := ParseDataRecords([]byte{
		0xC4, 0x81, 0x52, 0x13, 0x01, 0x00, 0x00, 0x00,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, []byte{0x81, 0x52}, r.DIFE)
	// DIF bit 6, then 0x1 and 0x2 from the DIFE nibbles
	assert.Equal(t, uint64(1|1<<1|2<<5), r.StorageNumber())
	assert.Equal(t, uint64(1<<2), r.Tariff())
	assert.Equal(t, uint64(1<<1), r.SubUnit())
	assert.Equal(t, "instantaneous", r.Function())
}

func TestDataRecord_Function(t *testing.T) {
	assert.Equal(t, "instantaneous", DataRecord{DIF: 0x04}.Function())
	assert.Equal(t, "maximum", DataRecord{DIF: 0x14}.Function())
	assert.Equal(t, "minimum", DataRecord{DIF: 0x24}.Function())
	assert.Equal(t, "error", DataRecord{DIF: 0x34}.Function())
}

func TestDataRecord_ValueErrors(t *testing.T) {
	_, err := DataRecord{DIF: 0x05, VIF: 0x2B, Data: []byte{1, 2}}.Value()
	assert.ErrorIs(t, err, ErrUnsupportedFieldLength)

	_, err = DataRecord{DIF: 0x0A, VIF: 0x13, Data: []byte{0x3A, 0x00}}.Value()
	assert.ErrorIs(t, err, ErrInvalidBCD)

	v, err := DataRecord{DIF: 0x00, VIF: 0x13}.Value()
	require.NoError(t, err)
	assert.Equal(t, "none", v.Type)
}

func TestLookupVIF(t *testing.T) {
	tests := []struct {
		vif  byte
		want Quantity
	}{
		{0x03, Quantity{Name: "Energy", Unit: "Wh", Exponent: 0}},
		{0x06, Quantity{Name: "Energy", Unit: "Wh", Exponent: 3}},
		{0x13, Quantity{Name: "Volume", Unit: "m3", Exponent: -3}},
		{0x22, Quantity{Name: "On time", Unit: "h"}},
		{0x3B, Quantity{Name: "Volume flow", Unit: "m3/h", Exponent: -3}},
		{0x59, Quantity{Name: "Flow temperature", Unit: "°C", Exponent: -2}},
		{0x5D, Quantity{Name: "Return temperature", Unit: "°C", Exponent: -2}},
		{0x6C, Quantity{Name: "Date"}},
		{0x78, Quantity{Name: "Fabrication number"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lookupPrimaryVIF(tt.vif), "VIF 0x%02X", tt.vif)
	}
	assert.False(t, lookupPrimaryVIF(0x7B).Known())

	assert.Equal(t, Quantity{Name: "Voltage", Unit: "V", Exponent: -6}, lookupExtendedVIF(0x43))
	assert.Equal(t, Quantity{Name: "Current", Unit: "A", Exponent: -9}, lookupExtendedVIF(0xD3))
	assert.Equal(t, "Access number", lookupExtendedVIF(0x08).Name)
}

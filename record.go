// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package mbus

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinels returned by DIFDataLength for fields without a fixed size.
const (
	DataLengthVariable = -1 // LVAR byte precedes the value
	DataLengthUnknown  = -2 // reserved code, size cannot be known
	DataLengthToEnd    = -3 // manufacturer specific data up to end of payload
)

// Special function DIFs
const (
	DIFManufacturerData     byte = 0x0F
	DIFMoreRecordsFollow    byte = 0x1F
	DIFIdleFiller           byte = 0x2F
	DIFGlobalReadoutRequest byte = 0x7F
)

const maxExtensions = 10

var difDataLengths = [16]int{
	0x0: 0,
	0x1: 1,
	0x2: 2,
	0x3: 3,
	0x4: 4,
	0x5: 4, // 32 bit real
	0x6: 6,
	0x7: 8,
	0x8: 0, // selection for readout
	0x9: 1,
	0xA: 2,
	0xB: 3,
	0xC: 4,
	0xD: DataLengthVariable,
	0xE: 6,
	0xF: DataLengthUnknown,
}

// DIFDataLength returns the value length selected by a data information
// field, or one of the DataLength sentinels.
func DIFDataLength(dif byte) int {
	switch dif {
	case DIFManufacturerData, DIFMoreRecordsFollow:
		return DataLengthToEnd
	case DIFIdleFiller, DIFGlobalReadoutRequest:
		return 0
	}
	return difDataLengths[dif&0x0F]
}

// DataRecord is one DIF/VIF entry of a variable data payload.
type DataRecord struct {
	DIF      byte
	DIFE     []byte
	VIF      byte
	VIFE     []byte
	PlainVIF string // unit text when VIF is 0x7C or 0xFC
	LVAR     byte   // length byte of variable length values
	Data     []byte
}

// IsSpecial reports whether the record is a special function without a VIF.
func (r DataRecord) IsSpecial() bool {
	return r.DIF&0x0F == 0x0F
}

// StorageNumber assembles the storage number from the DIF and its extensions.
func (r DataRecord) StorageNumber() uint64 {
	n := uint64(r.DIF>>6) & 0x01
	for i, e := range r.DIFE {
		n |= uint64(e&0x0F) << (1 + 4*uint(i))
	}
	return n
}

// Tariff assembles the tariff from the DIF extensions.
func (r DataRecord) Tariff() uint64 {
	var t uint64
	for i, e := range r.DIFE {
		t |= uint64((e>>4)&0x03) << (2 * uint(i))
	}
	return t
}

// SubUnit assembles the device sub unit from the DIF extensions.
func (r DataRecord) SubUnit() uint64 {
	var s uint64
	for i, e := range r.DIFE {
		s |= uint64((e>>6)&0x01) << uint(i)
	}
	return s
}

// Function returns the function field: instantaneous, maximum, minimum or
// value during error state.
func (r DataRecord) Function() string {
	switch (r.DIF >> 4) & 0x03 {
	case 0:
		return "instantaneous"
	case 1:
		return "maximum"
	case 2:
		return "minimum"
	default:
		return "error"
	}
}

// IsManufacturer reports whether the record carries a manufacturer code.
func (r DataRecord) IsManufacturer() bool {
	return r.VIF == 0xFD && len(r.VIFE) > 0 && r.VIFE[0]&0x7F == 0x0A
}

// Quantity resolves the VIF into a quantity name, unit and exponent.
func (r DataRecord) Quantity() Quantity {
	switch {
	case r.IsSpecial():
		return Quantity{}
	case r.VIF&0x7F == 0x7C:
		return Quantity{Name: "Plain text", Unit: r.PlainVIF}
	case r.VIF == 0xFD && len(r.VIFE) > 0:
		return lookupExtendedVIF(r.VIFE[0])
	case r.VIF == 0xFB || r.VIF == 0xFD:
		return Quantity{}
	default:
		return lookupPrimaryVIF(r.VIF & 0x7F)
	}
}

// DecodedValue holds a decoded record value.
type DecodedValue struct {
	Raw     []byte  `json:"raw"`     // Raw value as bytes
	Float64 float64 `json:"float64"` // Numeric value scaled by the VIF exponent
	Type    string  `json:"type"`    // none, int, real, bcd, string, manufacturer, date, datetime, bytes
	AsType  any     `json:"asType"`  // Unscaled value as its Go type
}

// GetFloat64Value returns the Float64 value, optionally rounded to the
// specified number of decimal places.
func (dv DecodedValue) GetFloat64Value(round int) float64 {
	if round > 0 {
		return math.Round(dv.Float64*math.Pow(10, float64(round))) / math.Pow(10, float64(round))
	}
	return dv.Float64
}

func (dv DecodedValue) String() string {
	return fmt.Sprintf("DecodedValue{Type: %s, AsType: %v, Float64: %g}", dv.Type, dv.AsType, dv.Float64)
}

// Value decodes the record according to its DIF coding.
func (r DataRecord) Value() (DecodedValue, error) {
	result := DecodedValue{Raw: r.Data, Type: "none"}
	q := r.Quantity()

	if r.IsManufacturer() && len(r.Data) == 2 {
		result.Type = "manufacturer"
		result.AsType = DecodeManufacturer(r.Data[0], r.Data[1])
		return result, nil
	}
	if r.VIF&0x7F == 0x6C && r.DIF&0x0F == 0x02 {
		return decodeDate(result, r.Data)
	}
	if r.VIF&0x7F == 0x6D && r.DIF&0x0F == 0x04 {
		return decodeDateTime(result, r.Data)
	}

	switch r.DIF & 0x0F {
	case 0x0, 0x8:
		return result, nil
	case 0x1, 0x2, 0x3, 0x4, 0x6, 0x7:
		v, err := DecodeInt(r.Data, true)
		if err != nil {
			return result, err
		}
		result.Type = "int"
		result.AsType = v
		result.Float64 = scale(float64(v), q.Exponent)
	case 0x5:
		if len(r.Data) != 4 {
			return result, fmt.Errorf("%w: %d byte real", ErrUnsupportedFieldLength, len(r.Data))
		}
		bits := uint32(r.Data[0]) | uint32(r.Data[1])<<8 | uint32(r.Data[2])<<16 | uint32(r.Data[3])<<24
		f := math.Float32frombits(bits)
		result.Type = "real"
		result.AsType = f
		result.Float64 = scale(float64(f), q.Exponent)
	case 0x9, 0xA, 0xB, 0xC, 0xE:
		v, err := decodeSignedBCD(r.Data)
		if err != nil {
			return result, err
		}
		result.Type = "bcd"
		result.AsType = v
		result.Float64 = scale(float64(v), q.Exponent)
	case 0xD:
		return r.decodeVariable(result, q)
	case 0xF:
		result.Type = "bytes"
		result.AsType = r.Data
	}
	return result, nil
}

func (r DataRecord) decodeVariable(result DecodedValue, q Quantity) (DecodedValue, error) {
	switch {
	case r.LVAR <= 0xBF:
		result.Type = "string"
		result.AsType = reversedString(r.Data)
	case r.LVAR >= 0xC0 && r.LVAR <= 0xC9:
		v, err := DecodeBCD(r.Data)
		if err != nil {
			return result, err
		}
		result.Type = "bcd"
		result.AsType = int64(v)
		result.Float64 = scale(float64(v), q.Exponent)
	case r.LVAR >= 0xD0 && r.LVAR <= 0xD9:
		v, err := DecodeBCD(r.Data)
		if err != nil {
			return result, err
		}
		result.Type = "bcd"
		result.AsType = -int64(v)
		result.Float64 = scale(-float64(v), q.Exponent)
	default:
		v, err := DecodeInt(r.Data, true)
		if err != nil {
			result.Type = "bytes"
			result.AsType = r.Data
			return result, nil
		}
		result.Type = "int"
		result.AsType = v
		result.Float64 = scale(float64(v), q.Exponent)
	}
	return result, nil
}

// decodeDate decodes a type G compound date.
func decodeDate(result DecodedValue, b []byte) (DecodedValue, error) {
	if len(b) != 2 {
		return result, fmt.Errorf("%w: %d byte date", ErrUnsupportedFieldLength, len(b))
	}
	day := int(b[0] & 0x1F)
	month := time.Month(b[1] & 0x0F)
	year := 2000 + int((b[0]&0xE0)>>5|(b[1]&0xF0)>>1)
	result.Type = "date"
	result.AsType = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return result, nil
}

// decodeDateTime decodes a type F compound date and time.
func decodeDateTime(result DecodedValue, b []byte) (DecodedValue, error) {
	if len(b) != 4 {
		return result, fmt.Errorf("%w: %d byte date and time", ErrUnsupportedFieldLength, len(b))
	}
	minute := int(b[0] & 0x3F)
	hour := int(b[1] & 0x1F)
	day := int(b[2] & 0x1F)
	month := time.Month(b[3] & 0x0F)
	year := 2000 + int((b[2]&0xE0)>>5|(b[3]&0xF0)>>1)
	result.Type = "datetime"
	result.AsType = time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	return result, nil
}

func scale(v float64, exponent int) float64 {
	if exponent == 0 {
		return v
	}
	if exponent < 0 {
		return v / math.Pow10(-exponent)
	}
	return v * math.Pow10(exponent)
}

// reversedString returns the text of an M-Bus string, which is sent last
// character first.
func reversedString(b []byte) string {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return string(out)
}

// lvarLength returns the value length selected by an LVAR byte.
func lvarLength(lvar byte) (int, error) {
	switch {
	case lvar <= 0xBF:
		return int(lvar), nil
	case lvar >= 0xC0 && lvar <= 0xC9:
		return int(lvar - 0xC0), nil
	case lvar >= 0xD0 && lvar <= 0xD9:
		return int(lvar - 0xD0), nil
	case lvar >= 0xE0 && lvar <= 0xEF:
		return int(lvar - 0xE0), nil
	default:
		return 0, fmt.Errorf("%w: LVAR 0x%02X", ErrUnsupportedFieldLength, lvar)
	}
}

// ParseDataRecords decodes the data records of a variable data payload.
// Records with reserved codes are dropped and parsing resumes at the next
// byte. A record claiming more bytes than remain stops parsing with
// ErrMalformedPayload; the records decoded so far are returned with it.
func ParseDataRecords(payload []byte) ([]DataRecord, error) {
	records, _, err := parseDataRecords(payload)
	return records, err
}

func parseDataRecords(payload []byte) ([]DataRecord, int, error) {
	var records []DataRecord
	skipped := 0
	i := 0
	for i < len(payload) {
		dif := payload[i]
		switch DIFDataLength(dif) {
		case DataLengthToEnd:
			records = append(records, DataRecord{DIF: dif, Data: cloneBytes(payload[i+1:])})
			return records, skipped, nil
		case DataLengthUnknown:
			skipped++
			i++
			continue
		}
		switch dif {
		case DIFIdleFiller:
			i++
			continue
		case DIFGlobalReadoutRequest:
			records = append(records, DataRecord{DIF: dif})
			i++
			continue
		}

		rec, size, err := parseDataRecord(payload[i:])
		if errors.Is(err, ErrUnsupportedFieldLength) {
			skipped++
			i++
			continue
		}
		if err != nil {
			return records, skipped, fmt.Errorf("record at offset %d: %w", i, err)
		}
		records = append(records, rec)
		i += size
	}
	return records, skipped, nil
}

func parseDataRecord(b []byte) (DataRecord, int, error) {
	rec := DataRecord{DIF: b[0]}
	i := 1

	for ext := rec.DIF&0x80 != 0; ext; i++ {
		if i >= len(b) {
			return rec, 0, fmt.Errorf("%w: DIFE beyond payload", ErrMalformedPayload)
		}
		if len(rec.DIFE) == maxExtensions {
			return rec, 0, fmt.Errorf("%w: more than %d DIFE", ErrMalformedPayload, maxExtensions)
		}
		rec.DIFE = append(rec.DIFE, b[i])
		ext = b[i]&0x80 != 0
	}

	if i >= len(b) {
		return rec, 0, fmt.Errorf("%w: missing VIF", ErrMalformedPayload)
	}
	rec.VIF = b[i]
	i++
	for ext := rec.VIF&0x80 != 0; ext; i++ {
		if i >= len(b) {
			return rec, 0, fmt.Errorf("%w: VIFE beyond payload", ErrMalformedPayload)
		}
		if len(rec.VIFE) == maxExtensions {
			return rec, 0, fmt.Errorf("%w: more than %d VIFE", ErrMalformedPayload, maxExtensions)
		}
		rec.VIFE = append(rec.VIFE, b[i])
		ext = b[i]&0x80 != 0
	}

	if rec.VIF&0x7F == 0x7C {
		if i >= len(b) {
			return rec, 0, fmt.Errorf("%w: missing plain text VIF length", ErrMalformedPayload)
		}
		n := int(b[i])
		i++
		if i+n > len(b) {
			return rec, 0, fmt.Errorf("%w: plain text VIF claims %d bytes, %d remain", ErrMalformedPayload, n, len(b)-i)
		}
		rec.PlainVIF = reversedString(b[i : i+n])
		i += n
	}

	n := DIFDataLength(rec.DIF)
	if n == DataLengthVariable {
		if i >= len(b) {
			return rec, 0, fmt.Errorf("%w: missing LVAR", ErrMalformedPayload)
		}
		rec.LVAR = b[i]
		i++
		var err error
		if n, err = lvarLength(rec.LVAR); err != nil {
			return rec, 0, err
		}
	}
	if i+n > len(b) {
		return rec, 0, fmt.Errorf("%w: record claims %d bytes, %d remain", ErrMalformedPayload, n, len(b)-i)
	}
	rec.Data = cloneBytes(b[i : i+n])
	return rec, i + n, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

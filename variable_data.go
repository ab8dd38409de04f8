package mbus

import (
	"errors"
	"fmt"
)

// Control information codes
const (
	CIApplicationReset    byte = 0x50
	CISelectSecondary     byte = 0x52
	CIResponseLongHeader  byte = 0x72
	CIResponseNoHeader    byte = 0x78
	CIResponseShortHeader byte = 0x7A
)

const (
	longHeaderLength  = 12
	shortHeaderLength = 4
)

// VariableDataHeader is the fixed header preceding the data records.
// Identification fields are only present in the long header.
type VariableDataHeader struct {
	IdentificationNumber uint64
	Manufacturer         string
	Version              byte
	Medium               byte
	AccessNumber         byte
	Status               byte
	Signature            uint16
}

// VariableData is a decoded variable data response (RSP_UD).
type VariableData struct {
	Header            VariableDataHeader
	Records           []DataRecord
	MoreRecordsFollow bool // a 0x1F record announced another telegram
	Skipped           int  // records dropped for reserved codes
}

// ParseVariableData decodes the fixed header and data records of a
// variable data response frame.
func ParseVariableData(f *Frame) (*VariableData, error) {
	if f == nil || f.Kind != FrameLong {
		return nil, fmt.Errorf("%w: variable data needs a long frame", ErrUnexpectedCI)
	}

	vd := &VariableData{}
	var payload []byte
	switch f.ControlInfo {
	case CIResponseLongHeader:
		if len(f.Data) < longHeaderLength {
			return nil, fmt.Errorf("%w: long header needs %d bytes, got %d", ErrMalformedPayload, longHeaderLength, len(f.Data))
		}
		h := f.Data
		id, err := DecodeBCD(h[0:4])
		if err != nil {
			return nil, fmt.Errorf("identification number: %w", err)
		}
		vd.Header = VariableDataHeader{
			IdentificationNumber: id,
			Manufacturer:         DecodeManufacturer(h[4], h[5]),
			Version:              h[6],
			Medium:               h[7],
			AccessNumber:         h[8],
			Status:               h[9],
			Signature:            uint16(h[10]) | uint16(h[11])<<8,
		}
		payload = f.Data[longHeaderLength:]
	case CIResponseShortHeader:
		if len(f.Data) < shortHeaderLength {
			return nil, fmt.Errorf("%w: short header needs %d bytes, got %d", ErrMalformedPayload, shortHeaderLength, len(f.Data))
		}
		h := f.Data
		vd.Header = VariableDataHeader{
			AccessNumber: h[0],
			Status:       h[1],
			Signature:    uint16(h[2]) | uint16(h[3])<<8,
		}
		payload = f.Data[shortHeaderLength:]
	case CIResponseNoHeader:
		payload = f.Data
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedCI, f.ControlInfo)
	}

	records, skipped, err := parseDataRecords(payload)
	vd.Records = records
	vd.Skipped = skipped
	for _, r := range records {
		if r.DIF == DIFMoreRecordsFollow {
			vd.MoreRecordsFollow = true
		}
	}
	if err != nil && !errors.Is(err, ErrMalformedPayload) {
		return nil, err
	}
	return vd, err
}

var mediumNames = map[byte]string{
	0x00: "Other",
	0x01: "Oil",
	0x02: "Electricity",
	0x03: "Gas",
	0x04: "Heat (outlet)",
	0x05: "Steam",
	0x06: "Hot water",
	0x07: "Water",
	0x08: "Heat cost allocator",
	0x09: "Compressed air",
	0x0A: "Cooling (outlet)",
	0x0B: "Cooling (inlet)",
	0x0C: "Heat (inlet)",
	0x0D: "Heat / cooling",
	0x0E: "Bus / system",
	0x0F: "Unknown",
	0x15: "Hot water",
	0x16: "Cold water",
	0x17: "Dual water",
	0x18: "Pressure",
	0x19: "A/D converter",
}

// MediumName returns the name of a medium code.
func MediumName(medium byte) string {
	if name, ok := mediumNames[medium]; ok {
		return name
	}
	return fmt.Sprintf("Reserved (0x%02X)", medium)
}

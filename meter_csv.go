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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVMeterParser converts meter lists between CSV and Meter values.
type CSVMeterParser struct {
	headers []string
}

// NewCSVMeterParser creates a new CSV meter parser
func NewCSVMeterParser() *CSVMeterParser {
	return &CSVMeterParser{
		headers: []string{"name", "address", "id", "manufacturer"},
	}
}

// ParseCSV parses a meter list. The header row must name the "name" and
// "address" columns; "id" and "manufacturer" are optional.
func (p *CSVMeterParser) ParseCSV(reader io.Reader) ([]Meter, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	headerMap := make(map[string]int)
	for i, h := range records[0] {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, field := range []string{"name", "address"} {
		if _, exists := headerMap[field]; !exists {
			return nil, fmt.Errorf("missing required field in CSV header: %s", field)
		}
	}

	var meters []Meter
	names := make(map[string]int)
	for i, record := range records[1:] {
		row := i + 2
		meter, err := p.parseMeterFromRecord(record, headerMap)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", row, err)
		}
		if err := ValidateMeter(meter); err != nil {
			return nil, fmt.Errorf("validation error for row %d (%s): %w", row, meter.Name, err)
		}
		if prev, dup := names[meter.Name]; dup {
			return nil, fmt.Errorf("duplicate meter name %q in rows %d and %d", meter.Name, prev, row)
		}
		names[meter.Name] = row
		meters = append(meters, meter)
	}
	return meters, nil
}

func (p *CSVMeterParser) parseMeterFromRecord(record []string, headerMap map[string]int) (Meter, error) {
	var meter Meter

	getField := func(fieldName string) string {
		if idx, exists := headerMap[fieldName]; exists && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	meter.Name = getField("name")
	if meter.Name == "" {
		return meter, fmt.Errorf("'name' is required")
	}

	addr := getField("address")
	if addr == "" {
		return meter, fmt.Errorf("'address' is required")
	}
	// Accept both decimal (5) and hex (0xFD) addresses.
	v, err := strconv.ParseUint(addr, 0, 8)
	if err != nil {
		return meter, fmt.Errorf("invalid 'address': %w", err)
	}
	meter.Address = byte(v)

	if id := getField("id"); id != "" {
		// Secondary identification numbers are written as their 8 BCD digits.
		v, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return meter, fmt.Errorf("invalid 'id': %w", err)
		}
		meter.ID = uint32(v)
	}
	meter.Manufacturer = strings.ToUpper(getField("manufacturer"))
	return meter, nil
}

// ValidateMeter checks the addressing of a meter.
func ValidateMeter(meter Meter) error {
	switch {
	case meter.Address <= 250:
		return nil
	case meter.Address == AddressNetworkLayer:
		if meter.ID > 99999999 {
			return fmt.Errorf("identification number %d exceeds 8 digits", meter.ID)
		}
		if meter.Manufacturer != "" {
			if _, _, err := EncodeManufacturer(meter.Manufacturer); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("address %d is reserved", meter.Address)
	}
}

// ToCSV writes meters in the format ParseCSV reads.
func (p *CSVMeterParser) ToCSV(meters []Meter, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	if err := csvWriter.Write(p.headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, meter := range meters {
		id := ""
		if meter.Address == AddressNetworkLayer {
			id = fmt.Sprintf("%08d", meter.ID)
		}
		record := []string{
			meter.Name,
			strconv.FormatUint(uint64(meter.Address), 10),
			id,
			meter.Manufacturer,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record for meter %s: %w", meter.Name, err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ParseCSVFromString parses a meter list from a string
func (p *CSVMeterParser) ParseCSVFromString(csvData string) ([]Meter, error) {
	return p.ParseCSV(strings.NewReader(csvData))
}

// ToCSVString converts meters to a CSV string
func (p *CSVMeterParser) ToCSVString(meters []Meter) (string, error) {
	var builder strings.Builder
	if err := p.ToCSV(meters, &builder); err != nil {
		return "", err
	}
	return builder.String(), nil
}

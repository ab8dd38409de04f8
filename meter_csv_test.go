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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVMeterParser_ParseCSV(t *testing.T) {
	parser := NewCSVMeterParser()

	csvData := `name,address,id,manufacturer
heat-main,1,,
water-cold, 0x05,,
gas,253,12345678,els
short-row,7`

	meters, err := parser.ParseCSVFromString(csvData)
	require.NoError(t, err)
	assert.Equal(t, []Meter{
		{Name: "heat-main", Address: 1},
		{Name: "water-cold", Address: 5},
		{Name: "gas", Address: AddressNetworkLayer, ID: 12345678, Manufacturer: "ELS"},
		{Name: "short-row", Address: 7},
	}, meters)
}

func TestCSVMeterParser_Errors(t *testing.T) {
	parser := NewCSVMeterParser()
	tests := map[string]string{
		"empty":           ``,
		"missing address": "name\nheat\n",
		"no name":         "name,address\n,1\n",
		"bad address":     "name,address\nheat,one\n",
		"address too big": "name,address\nheat,300\n",
		"reserved":        "name,address\nheat,254\n",
		"bad id":          "name,address,id\ngas,253,123456789\n",
		"bad maker":       "name,address,manufacturer\ngas,253,E1S\n",
		"duplicate name":  "name,address\nheat,1\nheat,2\n",
	}
	for name, csvData := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parser.ParseCSVFromString(csvData)
			assert.Error(t, err)
		})
	}
}

func TestCSVMeterParser_ToCSV(t *testing.T) {
	parser := NewCSVMeterParser()
	meters := []Meter{
		{Name: "heat-main", Address: 1},
		{Name: "gas", Address: AddressNetworkLayer, ID: 42, Manufacturer: "ELS"},
	}

	out, err := parser.ToCSVString(meters)
	require.NoError(t, err)
	assert.Equal(t, "name,address,id,manufacturer\nheat-main,1,,\ngas,253,00000042,ELS\n", out)

	parsed, err := parser.ParseCSVFromString(out)
	require.NoError(t, err)
	assert.Equal(t, meters, parsed)
}

package mbus

import "testing"

func TestChecksum(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected byte
	}{
		{data: []byte{0x40, 0x01}, expected: 0x41},                   // SND_NKE to address 1
		{data: []byte{0x5B, 0xFE}, expected: 0x59},                   // REQ_UD2 broadcast, wraps
		{data: []byte{0x08, 0x05, 0x72, 0x01, 0x02}, expected: 0x82}, // long frame body
		{data: []byte{}, expected: 0x00},                             // Empty data
		{data: []byte{0xFF, 0x01}, expected: 0x00},                   // Overflow to zero
	}

	for _, tc := range testCases {
		sum := Checksum(tc.data)
		if sum != tc.expected {
			t.Errorf("Checksum(%v) returned incorrect value: got %#02x, expected %#02x", tc.data, sum, tc.expected)
		}
	}
}

func TestVerifyChecksum(t *testing.T) {
	if !VerifyChecksum([]byte{0x53, 0xFE, 0x50}, 0xA1) {
		t.Error("VerifyChecksum should accept a matching checksum")
	}
	if VerifyChecksum([]byte{0x53, 0xFE, 0x50}, 0xA2) {
		t.Error("VerifyChecksum should reject a mismatching checksum")
	}
}

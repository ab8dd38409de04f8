package mbus

// rspUDWater is a RSP_UD from a water meter at primary address 5:
// id 12345678, manufacturer ELS, version 1, medium water, access number 42.
// Records: volume 1.000 m3, date 2009-12-01, flow temperature 23.4 °C,
// firmware version "3.1" and two bytes of manufacturer data.
var rspUDWater = []byte{
	0x68, 0x27, 0x27, 0x68, 0x08, 0x05, 0x72,
	0x78, 0x56, 0x34, 0x12, 0x93, 0x15, 0x01, 0x07, 0x2A, 0x00, 0x00, 0x00,
	0x04, 0x13, 0xE8, 0x03, 0x00, 0x00,
	0x02, 0x6C, 0x21, 0x1C,
	0x0A, 0x5A, 0x34, 0x02,
	0x0D, 0xFD, 0x0E, 0x03, 0x31, 0x2E, 0x33,
	0x0F, 0x01, 0x02,
	0x73, 0x16,
}

var (
	sndNKE5 = []byte{0x10, 0x40, 0x05, 0x45, 0x16}
	reqUD25 = []byte{0x10, 0x7B, 0x05, 0x80, 0x16}
)

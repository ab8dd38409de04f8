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
	"bytes"
	"fmt"
	"strings"
)

// Frame delimiters
const (
	StartAck   byte = 0xE5 // single character acknowledge
	StartShort byte = 0x10 // short frame start
	StartLong  byte = 0x68 // control and long frame start
	StopByte   byte = 0x16
)

const (
	ShortFrameLength = 5   // 10 C A CS 16
	LongHeaderLength = 4   // 68 L L 68
	MaxDataLength    = 252 // L is a single byte and covers C, A and CI
	MaxFrameLength   = LongHeaderLength + 3 + MaxDataLength + 2
)

// FrameKind identifies the wire format of a frame.
type FrameKind uint8

const (
	FrameAck FrameKind = iota + 1
	FrameShort
	FrameControl
	FrameLong
)

func (k FrameKind) String() string {
	switch k {
	case FrameAck:
		return "ack"
	case FrameShort:
		return "short"
	case FrameControl:
		return "control"
	case FrameLong:
		return "long"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Frame is one M-Bus telegram.
type Frame struct {
	Kind        FrameKind
	Control     byte   // C field
	Address     byte   // A field, primary address
	ControlInfo byte   // CI field, control and long frames only
	Data        []byte // user data, long frames only
}

// NewShortFrame creates a short frame (10 C A CS 16).
func NewShortFrame(control, address byte) Frame {
	return Frame{Kind: FrameShort, Control: control, Address: address}
}

// NewLongFrame creates a long frame, or a control frame when data is empty.
func NewLongFrame(control, address, ci byte, data []byte) Frame {
	f := Frame{Kind: FrameLong, Control: control, Address: address, ControlInfo: ci}
	if len(data) == 0 {
		f.Kind = FrameControl
		return f
	}
	f.Data = make([]byte, len(data))
	copy(f.Data, data)
	return f
}

// Encode serializes the frame to its wire format.
func (f Frame) Encode() ([]byte, error) {
	switch f.Kind {
	case FrameAck:
		return []byte{StartAck}, nil
	case FrameShort:
		return []byte{StartShort, f.Control, f.Address, Checksum([]byte{f.Control, f.Address}), StopByte}, nil
	case FrameControl, FrameLong:
		if f.Kind == FrameControl && len(f.Data) > 0 {
			return nil, fmt.Errorf("%w: control frame cannot carry data", ErrMalformed)
		}
		if len(f.Data) > MaxDataLength {
			return nil, fmt.Errorf("%w: data too long: %d bytes (max %d)", ErrMalformed, len(f.Data), MaxDataLength)
		}
		l := byte(3 + len(f.Data))
		frame := make([]byte, 0, int(l)+6)
		frame = append(frame, StartLong, l, l, StartLong, f.Control, f.Address, f.ControlInfo)
		frame = append(frame, f.Data...)
		frame = append(frame, Checksum(frame[LongHeaderLength:]), StopByte)
		return frame, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame kind %d", ErrMalformed, f.Kind)
	}
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	c := f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return c
}

// Equal reports whether two frames carry the same fields.
func (f Frame) Equal(o Frame) bool {
	return f.Kind == o.Kind &&
		f.Control == o.Control &&
		f.Address == o.Address &&
		f.ControlInfo == o.ControlInfo &&
		bytes.Equal(f.Data, o.Data)
}

func (f Frame) String() string {
	switch f.Kind {
	case FrameAck:
		return "Frame{Kind=ack}"
	case FrameShort:
		return fmt.Sprintf("Frame{Kind=short, C=0x%02X, A=0x%02X}", f.Control, f.Address)
	default:
		return fmt.Sprintf("Frame{Kind=%s, C=0x%02X, A=0x%02X, CI=0x%02X, DataLen=%d}",
			f.Kind, f.Control, f.Address, f.ControlInfo, len(f.Data))
	}
}

// ParseResponse extracts the first frame from buf. It returns the frame and
// the number of bytes the caller must drop from the front of buf.
//
// ErrIncomplete means more bytes are needed; nothing is consumed. Any other
// error consumes at least one byte: the garbage before a start marker, or
// the malformed frame up to the next start marker.
func ParseResponse(buf []byte) (*Frame, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	start := indexStart(buf, 0)
	if start < 0 {
		return nil, len(buf), fmt.Errorf("%w: no start marker in %d bytes", ErrMalformed, len(buf))
	}
	if start > 0 {
		return nil, start, fmt.Errorf("%w: %d bytes before start marker", ErrMalformed, start)
	}

	switch buf[0] {
	case StartAck:
		return &Frame{Kind: FrameAck}, 1, nil
	case StartShort:
		return parseShortFrame(buf)
	default:
		return parseLongFrame(buf)
	}
}

func parseShortFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < ShortFrameLength {
		return nil, 0, ErrIncomplete
	}
	if buf[4] != StopByte {
		return nil, resync(buf), fmt.Errorf("%w: short frame stop byte 0x%02X", ErrMalformed, buf[4])
	}
	if !VerifyChecksum(buf[1:3], buf[3]) {
		return nil, resync(buf), fmt.Errorf("%w: short frame got 0x%02X, want 0x%02X",
			ErrChecksumMismatch, buf[3], Checksum(buf[1:3]))
	}
	return &Frame{Kind: FrameShort, Control: buf[1], Address: buf[2]}, ShortFrameLength, nil
}

func parseLongFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < LongHeaderLength {
		return nil, 0, ErrIncomplete
	}
	l := int(buf[1])
	if buf[1] != buf[2] || buf[3] != StartLong || l < 3 {
		return nil, resync(buf), fmt.Errorf("%w: bad long frame header % X", ErrMalformed, buf[:LongHeaderLength])
	}
	total := LongHeaderLength + l + 2
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}
	if buf[total-1] != StopByte {
		return nil, resync(buf), fmt.Errorf("%w: long frame stop byte 0x%02X", ErrMalformed, buf[total-1])
	}
	body := buf[LongHeaderLength : LongHeaderLength+l]
	if cs := buf[LongHeaderLength+l]; !VerifyChecksum(body, cs) {
		return nil, resync(buf), fmt.Errorf("%w: long frame got 0x%02X, want 0x%02X",
			ErrChecksumMismatch, cs, Checksum(body))
	}

	f := &Frame{Kind: FrameControl, Control: body[0], Address: body[1], ControlInfo: body[2]}
	if l > 3 {
		f.Kind = FrameLong
		f.Data = make([]byte, l-3)
		copy(f.Data, body[3:])
	}
	return f, total, nil
}

// resync returns how many bytes to drop to reach the next start marker.
func resync(buf []byte) int {
	if next := indexStart(buf, 1); next > 0 {
		return next
	}
	return len(buf)
}

func indexStart(buf []byte, from int) int {
	for i := from; i < len(buf); i++ {
		switch buf[i] {
		case StartAck, StartShort, StartLong:
			return i
		}
	}
	return -1
}

// formatHex formats a byte slice as space separated hex pairs.
func formatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var builder strings.Builder
	for i, b := range data {
		if i > 0 {
			builder.WriteByte(' ')
		}
		fmt.Fprintf(&builder, "%02X", b)
	}
	return builder.String()
}

package mbus

import "fmt"

// Control field values
const (
	ControlSndNKE byte = 0x40 // link reset
	ControlSndUD  byte = 0x53 // send user data
	ControlReqUD2 byte = 0x5B // request class 2 data
	ControlRspUD  byte = 0x08 // user data response
	ControlFCB    byte = 0x20 // frame count bit
)

// Special primary addresses
const (
	AddressNetworkLayer     byte = 0xFD // secondary addressing
	AddressBroadcastReply   byte = 0xFE
	AddressBroadcastNoReply byte = 0xFF
)

// SndNKE builds a link reset for the given primary address. Meters answer
// with a single character acknowledge.
func SndNKE(address byte) Frame {
	return NewShortFrame(ControlSndNKE, address)
}

// ReqUD2 builds a class 2 data request. fcb toggles the frame count bit.
func ReqUD2(address byte, fcb bool) Frame {
	c := ControlReqUD2
	if fcb {
		c |= ControlFCB
	}
	return NewShortFrame(c, address)
}

// ApplicationReset builds an application reset SND_UD.
func ApplicationReset(address byte) Frame {
	return NewLongFrame(ControlSndUD, address, CIApplicationReset, nil)
}

// SelectSecondary builds the secondary address selection telegram. The
// selected meter then answers on AddressNetworkLayer. An empty manufacturer
// and 0xFF version or medium act as wildcards.
func SelectSecondary(id uint32, manufacturer string, version, medium byte) (Frame, error) {
	if id > 99999999 {
		return Frame{}, fmt.Errorf("identification number %d exceeds 8 digits", id)
	}
	m1, m2 := byte(0xFF), byte(0xFF)
	if manufacturer != "" {
		var err error
		if m1, m2, err = EncodeManufacturer(manufacturer); err != nil {
			return Frame{}, err
		}
	}
	data := append(EncodeBCD(uint64(id), 4), m1, m2, version, medium)
	return NewLongFrame(ControlSndUD, AddressNetworkLayer, CISelectSecondary, data), nil
}

// IsAck reports whether f is a positive acknowledge.
func IsAck(f *Frame) bool {
	return f != nil && f.Kind == FrameAck
}

// IsUserData reports whether f is a RSP_UD response.
func IsUserData(f *Frame) bool {
	return f != nil && f.Kind == FrameLong && f.Control&0x4F == ControlRspUD
}

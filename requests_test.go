package mbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReqUD2_FrameCountBit(t *testing.T) {
	assert.Equal(t, byte(0x5B), ReqUD2(1, false).Control)
	assert.Equal(t, byte(0x7B), ReqUD2(1, true).Control)
	assert.Equal(t, FrameShort, ReqUD2(1, true).Kind)
}

func TestSelectSecondary(t *testing.T) {
	f, err := SelectSecondary(12345678, "ELS", 0x01, 0x07)
	require.NoError(t, err)
	raw, err := f.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x68, 0x0B, 0x0B, 0x68, 0x53, 0xFD, 0x52,
		0x78, 0x56, 0x34, 0x12, 0x93, 0x15, 0x01, 0x07,
		0x66, 0x16,
	}, raw)

	f, err = SelectSecondary(12345678, "", 0xFF, 0xFF)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12, 0xFF, 0xFF, 0xFF, 0xFF}, f.Data)

	_, err = SelectSecondary(100000000, "ELS", 0, 0)
	assert.Error(t, err)
	_, err = SelectSecondary(1, "E1S", 0, 0)
	assert.Error(t, err)
}

func TestResponsePredicates(t *testing.T) {
	assert.True(t, IsAck(&Frame{Kind: FrameAck}))
	assert.False(t, IsAck(nil))
	assert.False(t, IsAck(&Frame{Kind: FrameShort}))

	rsp := NewLongFrame(0x28, 5, CIResponseLongHeader, []byte{0x00})
	assert.True(t, IsUserData(&rsp), "ACD bit set")
	req := NewLongFrame(ControlSndUD, 5, CIResponseLongHeader, []byte{0x00})
	assert.False(t, IsUserData(&req))
	assert.False(t, IsUserData(&Frame{Kind: FrameAck}))
}

package packet

import (
	"encoding/binary"
	"errors"
)

// Variant tells which of the two header layouts a packet uses.
type Variant uint8

const (
	// Full is the 16 byte header with a 32 bit masked stream/sequence field.
	Full Variant = iota
	// Short is the 8 byte header used on low bandwidth radios, with an 8 bit rolling index.
	Short
)

func (v Variant) String() string {
	switch v {
	case Full:
		return "full"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Full header layout (little endian):
//
//	Flags(1) | Type(1) | StreamPacketIdx(4) | SrcPeer(4) | DstPeer(4) | TotalLength(2)
//
// The high 4 bits of StreamPacketIdx carry the stream id, the low 28 bits the running index.
const (
	FullHeaderSize = 16

	StreamIndexShift = 28
	StreamIndexMask  = 0xF0000000
	PacketIndexMask  = 0x0FFFFFFF

	componentMask = 0x0F
)

// Short header layout:
//
//	Type(1) | RollingIndex(1) | Stream(1) | SrcPeer(4) | PayloadLength(1)
const ShortHeaderSize = 8

// Sequence space widths in bits.
const (
	FullSequenceWidth  = 32
	ShortSequenceWidth = 8
)

// Component tags carried in the low nibble of the flags byte.
const (
	ComponentRuby      = 0
	ComponentVideo     = 1
	ComponentTelemetry = 2
	ComponentCommands  = 3
	ComponentRC        = 4
	ComponentAudio     = 5
	ComponentData      = 6
)

var ErrShortPacket = errors.New("packet shorter than its header")

// Header is the normalized view of either header variant. Duplicate and loss
// tracking operate only on this value.
type Header struct {
	Variant   Variant
	PeerID    uint32
	StreamID  int
	Sequence  uint32
	Width     uint8
	Component uint8
	Type      uint8
	// ShortIndex is the 8 bit rolling counter, only meaningful for Short.
	ShortIndex uint8
}

// IsVideo reports whether the packet belongs to the video signal bucket.
func (h Header) IsVideo() bool {
	return h.Component == ComponentVideo
}

// DecodeFull extracts the fields of a full header. Stream ids at or beyond
// maxStreams fall back to stream 0.
func DecodeFull(data []byte, maxStreams int) (Header, error) {
	if len(data) < FullHeaderSize {
		return Header{}, ErrShortPacket
	}
	idx := binary.LittleEndian.Uint32(data[2:6])
	return Header{
		Variant:   Full,
		PeerID:    binary.LittleEndian.Uint32(data[6:10]),
		StreamID:  ClampStream(int(idx>>StreamIndexShift), maxStreams),
		Sequence:  idx,
		Width:     FullSequenceWidth,
		Component: data[0] & componentMask,
		Type:      data[1],
	}, nil
}

// DecodeShort extracts the fields of a short header.
func DecodeShort(data []byte, maxStreams int) (Header, error) {
	if len(data) < ShortHeaderSize {
		return Header{}, ErrShortPacket
	}
	return Header{
		Variant:    Short,
		PeerID:     binary.LittleEndian.Uint32(data[3:7]),
		StreamID:   ClampStream(int(data[2]), maxStreams),
		Sequence:   uint32(data[1]),
		Width:      ShortSequenceWidth,
		Component:  ComponentData,
		Type:       data[0],
		ShortIndex: data[1],
	}, nil
}

// Decode dispatches on the variant.
func Decode(v Variant, data []byte, maxStreams int) (Header, error) {
	if v == Short {
		return DecodeShort(data, maxStreams)
	}
	return DecodeFull(data, maxStreams)
}

// ClampStream maps out of range stream ids to stream 0.
func ClampStream(stream int, maxStreams int) int {
	if stream < 0 || stream >= maxStreams {
		return 0
	}
	return stream
}

// EncodeFull writes a full header into a new buffer followed by payload.
// Used by the tap tooling and tests.
func EncodeFull(component uint8, packetType uint8, stream int, index uint32, srcPeer uint32, dstPeer uint32, payload []byte) []byte {
	data := make([]byte, FullHeaderSize+len(payload))
	data[0] = component & componentMask
	data[1] = packetType
	binary.LittleEndian.PutUint32(data[2:6], (uint32(stream)<<StreamIndexShift)&StreamIndexMask|index&PacketIndexMask)
	binary.LittleEndian.PutUint32(data[6:10], srcPeer)
	binary.LittleEndian.PutUint32(data[10:14], dstPeer)
	binary.LittleEndian.PutUint16(data[14:16], uint16(len(data)))
	copy(data[FullHeaderSize:], payload)
	return data
}

// EncodeShort writes a short header into a new buffer followed by payload.
func EncodeShort(packetType uint8, index uint8, stream uint8, srcPeer uint32, payload []byte) []byte {
	data := make([]byte, ShortHeaderSize+len(payload))
	data[0] = packetType
	data[1] = index
	data[2] = stream
	binary.LittleEndian.PutUint32(data[3:7], srcPeer)
	data[7] = uint8(len(payload))
	copy(data[ShortHeaderSize:], payload)
	return data
}

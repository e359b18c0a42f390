package diag

import (
	"encoding/binary"
	"io"

	"github.com/sigurn/crc16"
)

// Seq defines the type of frame sequence number.
type Seq byte

// Next calculates the next sequence number.
func (s Seq) Next() Seq {
	n := byte(s) + 1
	if n == 0 || n >= 0xf0 {
		n = 1
	}
	return Seq(n)
}

// IsValid checks if it's a valid sequence number.
func (s Seq) IsValid() bool {
	n := byte(s)
	return n > 0 && n < 0xf0
}

// Code is the frame payload type.
type Code byte

// Frame codes.
const (
	// CodeTyped carries an encoded msgs.Typed.
	CodeTyped Code = 0x01
	// CodeText carries a human readable line.
	CodeText Code = 0x02
)

const (
	sof          byte = 0x7e
	headerSize        = 5
	trailerSize       = 2
	// MaxFrameData is the largest payload of a frame.
	MaxFrameData = 4096
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Frame is a diagnostic frame.
type Frame struct {
	Seq  Seq
	Code Code
	Data []byte
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() []byte {
	b := make([]byte, headerSize+len(f.Data)+trailerSize)
	b[0], b[1], b[2] = sof, byte(f.Seq), byte(f.Code)
	binary.LittleEndian.PutUint16(b[3:5], uint16(len(f.Data)))
	copy(b[headerSize:], f.Data)
	sum := crc16.Checksum(b[1:headerSize+len(f.Data)], crcTable)
	binary.BigEndian.PutUint16(b[headerSize+len(f.Data):], sum)
	return b
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	if len(f.Data) > MaxFrameData {
		return 0, ErrFrameTooLong
	}
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

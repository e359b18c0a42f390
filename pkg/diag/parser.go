package diag

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

// Parser parses bytes received.
type Parser struct {
	state   parseState
	frame   *Frame
	dataLen int
	recvLen int
	crc     [2]byte
	lenBuf  [2]byte
	peerSeq Seq
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	Frame *Frame
	// Lost is the number of frames skipped before Frame.
	Lost int
	Err  error
}

type parseState int

const (
	stateSOF parseState = iota
	stateSeq
	stateCode
	stateLenLo
	stateLenHi
	stateData
	stateCRCHi
	stateCRCLo
)

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.frame = stateSOF, nil
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch p.state {
	case stateSOF:
		if b == sof {
			p.state = stateSeq
		}
	case stateSeq:
		if seq := Seq(b); seq.IsValid() {
			p.frame = &Frame{Seq: seq}
			p.state = stateCode
		} else if b != sof {
			p.Reset()
		}
	case stateCode:
		p.frame.Code = Code(b)
		p.state = stateLenLo
	case stateLenLo:
		p.lenBuf[0] = b
		p.state = stateLenHi
	case stateLenHi:
		p.lenBuf[1] = b
		p.dataLen = int(binary.LittleEndian.Uint16(p.lenBuf[:]))
		if p.dataLen > MaxFrameData {
			p.Reset()
			pr.Err = ErrFrameTooLong
			return
		}
		p.frame.Data, p.recvLen = make([]byte, p.dataLen), 0
		p.state = stateData
		if p.dataLen == 0 {
			p.state = stateCRCHi
		}
	case stateData:
		p.frame.Data[p.recvLen] = b
		p.recvLen++
		if p.recvLen >= p.dataLen {
			p.state = stateCRCHi
		}
	case stateCRCHi:
		p.crc[0] = b
		p.state = stateCRCLo
	case stateCRCLo:
		p.crc[1] = b
		return p.frameReady()
	}
	return
}

func (p *Parser) frameReady() (pr ParseResult) {
	f := p.frame
	p.Reset()
	expected := binary.BigEndian.Uint16(p.crc[:])
	covered := append([]byte{byte(f.Seq), byte(f.Code), p.lenBuf[0], p.lenBuf[1]}, f.Data...)
	sum := crc16.Checksum(covered, crcTable)
	if sum != expected {
		pr.Err = &ChecksumError{Seq: f.Seq, Expected: expected, Actual: sum}
		return
	}
	if p.peerSeq.IsValid() {
		for s := p.peerSeq.Next(); s != f.Seq && pr.Lost < 0xf0; s = s.Next() {
			pr.Lost++
		}
	}
	p.peerSeq = f.Seq
	pr.Frame = f
	return
}

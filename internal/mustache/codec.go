// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package mustache

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Serialized program layout, little-endian:
//
//	magic "MSTB", u8 format version, u8 engine version length,
//	engine version string, u32 instruction count, u32 data length,
//	instructions (17 bytes each), data blob.
const (
	codecMagic   = "MSTB"
	codecFormat  = 1
	instWireSize = 17
)

// ErrBadProgram reports a serialized program that cannot be decoded.
var ErrBadProgram = errors.New("malformed serialized program")

// MarshalBinary encodes the Program for on-disk caching. The current
// EngineVersion is recorded so loaders can reject incompatible artifacts.
func (p *Program) MarshalBinary() ([]byte, error) {
	ver := EngineVersion
	buf := make([]byte, 0, 4+2+len(ver)+8+len(p.code)*instWireSize+len(p.data))
	buf = append(buf, codecMagic...)
	buf = append(buf, codecFormat, byte(len(ver)))
	buf = append(buf, ver...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.code)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.data)))
	for i := range p.code {
		in := &p.code[i]
		buf = append(buf, byte(in.Op))
		buf = binary.LittleEndian.AppendUint32(buf, in.NamePos)
		buf = binary.LittleEndian.AppendUint16(buf, in.NameLen)
		buf = binary.LittleEndian.AppendUint16(buf, in.Offset)
		buf = binary.LittleEndian.AppendUint32(buf, in.Len)
		buf = binary.LittleEndian.AppendUint32(buf, in.End)
	}
	buf = append(buf, p.data...)
	return buf, nil
}

// UnmarshalProgram decodes a serialized program and returns it together with
// the engine version that produced it. Compatibility policy is the caller's
// concern.
func UnmarshalProgram(b []byte) (*Program, string, error) {
	if len(b) < 6 || string(b[:4]) != codecMagic {
		return nil, "", fmt.Errorf("%w: bad magic", ErrBadProgram)
	}
	if b[4] != codecFormat {
		return nil, "", fmt.Errorf("%w: format %d", ErrBadProgram, b[4])
	}
	verLen := int(b[5])
	if len(b) < 6+verLen+8 {
		return nil, "", fmt.Errorf("%w: truncated header", ErrBadProgram)
	}
	ver := string(b[6 : 6+verLen])
	off := 6 + verLen
	instCount := int(binary.LittleEndian.Uint32(b[off:]))
	dataLen := int(binary.LittleEndian.Uint32(b[off+4:]))
	off += 8
	if len(b) != off+instCount*instWireSize+dataLen {
		return nil, "", fmt.Errorf("%w: truncated body", ErrBadProgram)
	}
	p := &Program{
		code: make([]Instruction, instCount),
		data: make([]byte, dataLen),
	}
	for i := 0; i < instCount; i++ {
		in := &p.code[i]
		in.Op = OpCode(b[off])
		in.NamePos = binary.LittleEndian.Uint32(b[off+1:])
		in.NameLen = binary.LittleEndian.Uint16(b[off+5:])
		in.Offset = binary.LittleEndian.Uint16(b[off+7:])
		in.Len = binary.LittleEndian.Uint32(b[off+9:])
		in.End = binary.LittleEndian.Uint32(b[off+13:])
		off += instWireSize
	}
	copy(p.data, b[off:])
	return p, ver, nil
}

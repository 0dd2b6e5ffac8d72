// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mustache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
)

// Resolver abstracts the filesystem the compiler reads partials from. The
// default implementation is backed by the OS; tests substitute an in-memory
// map.
type Resolver interface {
	// Stat reports the size of name and whether it exists as a regular file.
	Stat(name string) (int64, bool)
	// ReadFile returns the contents of name.
	ReadFile(name string) ([]byte, error)
}

type osResolver struct{}

func (osResolver) Stat(name string) (int64, bool) {
	fi, err := os.Stat(name)
	if err != nil || !fi.Mode().IsRegular() {
		return 0, false
	}
	return fi.Size(), true
}

func (osResolver) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Loader compiles templates into Programs. The zero value uses the OS
// filesystem.
type Loader struct {
	Resolver Resolver
}

// NewLoader returns a Loader backed by the OS filesystem.
func NewLoader() *Loader {
	return &Loader{Resolver: osResolver{}}
}

// CompileFile reads filename and compiles it, loading any referenced
// partials transitively.
func (l *Loader) CompileFile(filename string) (*Program, error) {
	return l.compile(filename, nil)
}

// Compile compiles inline source registered under filename. Partials
// referenced by the source are resolved relative to filename's directory.
func (l *Loader) Compile(filename string, src []byte) (*Program, error) {
	if src == nil {
		src = []byte{}
	}
	return l.compile(filename, src)
}

// CompileFile compiles filename with a default Loader.
func CompileFile(filename string) (*Program, error) {
	return NewLoader().CompileFile(filename)
}

// Compile compiles inline source with a default Loader.
func Compile(filename string, src []byte) (*Program, error) {
	return NewLoader().Compile(filename, src)
}

func (l *Loader) compile(filename string, src []byte) (*Program, error) {
	res := l.Resolver
	if res == nil {
		res = osResolver{}
	}
	if len(filename) > maxFileName {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileNameTooLong, len(filename))
	}
	if src == nil {
		if filename == "" {
			return nil, fmt.Errorf("%w: no template given", ErrFileNameTooShort)
		}
		size, ok := res.Stat(filename)
		if !ok {
			return nil, wrapFileNotFound(filename)
		}
		if size > maxFileSize {
			return nil, wrapFileTooBig(filename, size)
		}
		b, err := res.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFileNotFound, filename, err)
		}
		src = b
	}
	c := &compiler{res: res}
	if err := c.register(filename, src); err != nil {
		return nil, err
	}
	return c.run()
}

// parseFrame is one entry on the compiler's parsing stack. Offsets are
// absolute positions in the growing data blob, which is append-only, so they
// stay valid across partial loads.
type parseFrame struct {
	entryOff   int
	dataStart  int
	dataPos    int
	dataEnd    int
	startDelim string
	endDelim   string
	open       []int // instruction indexes of unclosed sections
}

type compiler struct {
	res   Resolver
	code  []Instruction
	data  []byte
	stack []parseFrame
}

// register appends a directory entry plus the template source to the data
// blob, emits the template's wrapper SECTION_START, and pushes a parsing
// frame with default delimiters.
func (c *compiler) register(name string, src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyTemplate, name)
	}
	if int64(len(src)) > maxFileSize {
		return wrapFileTooBig(name, int64(len(src)))
	}
	if len(c.stack) >= MaxNesting {
		return wrapTooDeep(name)
	}
	entryOff := len(c.data)
	dataStart := entryOff + entryHeaderSize + len(name) + 1
	next := dataStart + len(src)
	if int64(next) > 1<<32-1 {
		return wrapFileTooBig(name, int64(next))
	}
	pathLen := 0
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		pathLen = i + 1
	}
	var hdr [entryHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(next))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(c.code)))
	binary.LittleEndian.PutUint16(hdr[8:], uint16(len(name)))
	binary.LittleEndian.PutUint16(hdr[10:], uint16(pathLen))
	c.data = append(c.data, hdr[:]...)
	c.data = append(c.data, name...)
	c.data = append(c.data, 0)
	c.data = append(c.data, src...)
	c.code = append(c.code, Instruction{Op: OpSectionStart})
	c.stack = append(c.stack, parseFrame{
		entryOff:   entryOff,
		dataStart:  dataStart,
		dataPos:    dataStart,
		dataEnd:    next,
		startDelim: "{{",
		endDelim:   "}}",
	})
	return nil
}

// run drives the parsing stack until every frame is exhausted, then compacts
// the two buffers into exact-size allocations.
func (c *compiler) run() (*Program, error) {
	for len(c.stack) > 0 {
		fi := len(c.stack) - 1
		f := &c.stack[fi]
		if f.dataPos >= f.dataEnd {
			if n := len(f.open); n > 0 {
				in := &c.code[f.open[n-1]]
				return nil, wrapClosureMismatch(string(c.data[in.NamePos:int(in.NamePos)+int(in.NameLen)]), f.dataEnd-f.dataStart)
			}
			entry := readEntry(c.data, f.entryOff)
			c.code = append(c.code, Instruction{Op: OpSectionEnd})
			c.code[entry.InstStart].End = uint32(len(c.code))
			c.code[len(c.code)-1].End = uint32(len(c.code))
			c.stack = c.stack[:fi]
			continue
		}
		if err := c.scan(fi); err != nil {
			return nil, err
		}
	}
	return &Program{
		code: append(make([]Instruction, 0, len(c.code)), c.code...),
		data: append(make([]byte, 0, len(c.data)), c.data...),
	}, nil
}

// scan consumes one literal run plus one tag of the frame's template.
func (c *compiler) scan(fi int) error {
	f := &c.stack[fi]
	sd, ed := []byte(f.startDelim), []byte(f.endDelim)

	rel := bytes.Index(c.data[f.dataPos:f.dataEnd], sd)
	if rel < 0 {
		c.emitText(f.dataPos, f.dataEnd)
		f.dataPos = f.dataEnd
		return nil
	}
	tagOpen := f.dataPos + rel
	if tagOpen > f.dataPos {
		c.emitText(f.dataPos, tagOpen)
	}
	innerStart := tagOpen + len(sd)
	rel = bytes.Index(c.data[innerStart:f.dataEnd], ed)
	if rel < 0 {
		return wrapClosureMismatch(f.startDelim, tagOpen-f.dataStart)
	}
	tagEnd := innerStart + rel
	after := tagEnd + len(ed)
	inner := c.data[innerStart:tagEnd]
	if len(inner) == 0 {
		f.dataPos = after
		return nil
	}

	switch inner[0] {
	case '!':
		f.dataPos = after

	case '=':
		nsd, ned, err := parseDelims(inner)
		if err != nil {
			return err
		}
		f.startDelim, f.endDelim = nsd, ned
		f.dataPos = after

	case '#', '^':
		namePos, nameLen, err := c.trimName(innerStart+1, tagEnd)
		if err != nil {
			return err
		}
		if len(f.open) >= MaxNesting {
			return wrapTooDeep(string(c.data[namePos : namePos+nameLen]))
		}
		off := after - namePos
		if off > maxNameLen {
			return wrapNameTooLong(namePos - f.dataStart)
		}
		op := OpSectionStart
		if inner[0] == '^' {
			op = OpSectionStartInv
		}
		f.open = append(f.open, len(c.code))
		c.code = append(c.code, Instruction{
			Op:      op,
			NamePos: uint32(namePos),
			NameLen: uint16(nameLen),
			Offset:  uint16(off),
		})
		f.dataPos = after

	case '/':
		namePos, nameLen, err := c.trimName(innerStart+1, tagEnd)
		if err != nil {
			return err
		}
		name := c.data[namePos : namePos+nameLen]
		if len(f.open) == 0 {
			return wrapClosureMismatch(string(name), tagOpen-f.dataStart)
		}
		si := f.open[len(f.open)-1]
		start := &c.code[si]
		if !bytes.Equal(name, c.data[start.NamePos:int(start.NamePos)+int(start.NameLen)]) {
			return wrapClosureMismatch(string(name), tagOpen-f.dataStart)
		}
		bodyStart := int(start.NamePos) + int(start.Offset)
		start.Len = uint32(tagOpen - bodyStart)
		end := *start
		end.Op = OpSectionEnd
		c.code = append(c.code, end)
		// append may have moved the array, so start is re-indexed here.
		c.code[si].End = uint32(len(c.code))
		c.code[len(c.code)-1].End = uint32(len(c.code))
		f.open = f.open[:len(f.open)-1]
		f.dataPos = after

	case '>':
		namePos, nameLen, err := c.trimName(innerStart+1, tagEnd)
		if err != nil {
			return err
		}
		f.dataPos = after
		return c.loadPartial(string(c.data[namePos : namePos+nameLen]))

	case '{':
		namePos, nameLen, err := c.trimName(innerStart+1, tagEnd)
		if err != nil {
			return err
		}
		// Triple brace: the scan above stops at the first end delimiter,
		// leaving the third closing brace in the source.
		if len(ed) > 0 && ed[0] == '}' && ed[len(ed)-1] == '}' && after < f.dataEnd && c.data[after] == '}' {
			after++
		}
		c.code = append(c.code, Instruction{Op: OpWriteArgRaw, NamePos: uint32(namePos), NameLen: uint16(nameLen)})
		f.dataPos = after

	case '&':
		namePos, nameLen, err := c.trimName(innerStart+1, tagEnd)
		if err != nil {
			return err
		}
		c.code = append(c.code, Instruction{Op: OpWriteArgRaw, NamePos: uint32(namePos), NameLen: uint16(nameLen)})
		f.dataPos = after

	case ':', '<':
		// Pass-through tag types kept for compatibility: one prefix byte is
		// consumed and the rest behaves as a plain named value.
		namePos, nameLen, err := c.trimName(innerStart+1, tagEnd)
		if err != nil {
			return err
		}
		c.code = append(c.code, Instruction{Op: OpWriteArg, NamePos: uint32(namePos), NameLen: uint16(nameLen)})
		f.dataPos = after

	default:
		namePos, nameLen, err := c.trimName(innerStart, tagEnd)
		if err != nil {
			return err
		}
		c.code = append(c.code, Instruction{Op: OpWriteArg, NamePos: uint32(namePos), NameLen: uint16(nameLen)})
		f.dataPos = after
	}
	return nil
}

// emitText writes WRITE_TEXT instructions for [start, end), splitting runs
// that exceed the 16-bit length field.
func (c *compiler) emitText(start, end int) {
	for start < end {
		n := end - start
		if n > maxTextSpan {
			n = maxTextSpan
		}
		c.code = append(c.code, Instruction{Op: OpWriteText, NamePos: uint32(start), NameLen: uint16(n)})
		start += n
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// trimName strips surrounding ASCII whitespace from the blob range
// [from, to) and returns the absolute position and length of what remains.
func (c *compiler) trimName(from, to int) (int, int, error) {
	for from < to && isSpace(c.data[from]) {
		from++
	}
	for to > from && isSpace(c.data[to-1]) {
		to--
	}
	if to-from > maxNameLen {
		return 0, 0, wrapNameTooLong(from)
	}
	return from, to - from, nil
}

// parseDelims handles a {{=<start> <end>=}} tag body (sigil included).
func parseDelims(inner []byte) (string, string, error) {
	if len(inner) < 2 || inner[len(inner)-1] != '=' {
		return "", "", fmt.Errorf("%w: malformed delimiter tag", ErrClosureMismatch)
	}
	fields := strings.Fields(string(inner[1 : len(inner)-1]))
	if len(fields) != 2 {
		return "", "", fmt.Errorf("%w: malformed delimiter tag", ErrClosureMismatch)
	}
	for _, d := range fields {
		if len(d) >= MaxDelim {
			return "", "", wrapDelimiterTooLong(d)
		}
	}
	return fields[0], fields[1], nil
}

// loadPartial resolves a {{>name}} reference. Directory hits become a
// SECTION_GOTO to the cached template; misses load the file and push a new
// parsing frame. A name matching the root template that resolves to no file
// is treated as a self-reference.
func (c *compiler) loadPartial(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty partial name", ErrFileNameTooShort)
	}
	if len(name) > maxFileName {
		return fmt.Errorf("%w: %d bytes", ErrFileNameTooLong, len(name))
	}

	// Walk the parsing stack from the innermost template outward, trying
	// each template's directory as a base for the partial path.
	var (
		full       string
		size       int64
		found      bool
		lastPrefix = "\x00"
	)
	for i := len(c.stack) - 1; i >= 0; i-- {
		entry := readEntry(c.data, c.stack[i].entryOff)
		prefix := entry.Name[:entry.PathLen]
		if prefix == lastPrefix {
			continue
		}
		lastPrefix = prefix
		cand := prefix + name
		if len(cand)+len(".mustache") > maxFileName {
			return fmt.Errorf("%w: %d bytes", ErrFileNameTooLong, len(cand))
		}
		if s, ok := c.res.Stat(cand); ok {
			full, size, found = cand, s, true
			break
		}
		cand += ".mustache"
		if s, ok := c.res.Stat(cand); ok {
			full, size, found = cand, s, true
			break
		}
		if entry.PathLen == 0 {
			break
		}
	}

	if !found {
		root := readEntry(c.data, 0)
		if name == root.Name {
			idx := len(c.code)
			c.code = append(c.code, Instruction{Op: OpSectionGoto, Len: uint32(root.InstStart), End: uint32(idx + 1)})
			return nil
		}
		return wrapFileNotFound(name)
	}

	for off := 0; off < len(c.data); {
		e := readEntry(c.data, off)
		if e.Name == full {
			idx := len(c.code)
			c.code = append(c.code, Instruction{Op: OpSectionGoto, Len: uint32(e.InstStart), End: uint32(idx + 1)})
			return nil
		}
		off = e.DataEnd
	}

	if size > maxFileSize {
		return wrapFileTooBig(full, size)
	}
	src, err := c.res.ReadFile(full)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileNotFound, full, err)
	}
	return c.register(full, src)
}

// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package mustache

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver serves templates from memory so compiler tests never touch the
// real filesystem.
type mapResolver map[string]string

func (m mapResolver) Stat(name string) (int64, bool) {
	s, ok := m[name]
	if !ok {
		return 0, false
	}
	return int64(len(s)), true
}

func (m mapResolver) ReadFile(name string) ([]byte, error) {
	s, ok := m[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(s), nil
}

func compileWith(t *testing.T, files mapResolver, root string) *Program {
	t.Helper()
	l := &Loader{Resolver: files}
	prog, err := l.CompileFile(root)
	require.NoError(t, err)
	return prog
}

func TestCompileSimpleTemplate(t *testing.T) {
	prog, err := Compile("hello.mustache", []byte("Hello {{name}}!"))
	require.NoError(t, err)

	code := prog.Instructions()
	// wrapper, text, arg, text, terminating end
	require.Len(t, code, 5)
	assert.Equal(t, OpSectionStart, code[0].Op)
	assert.Equal(t, uint32(0), code[0].NamePos)
	assert.Equal(t, OpWriteText, code[1].Op)
	assert.Equal(t, OpWriteArg, code[2].Op)
	assert.Equal(t, "name", string(prog.name(&code[2])))
	assert.Equal(t, OpWriteText, code[3].Op)
	assert.Equal(t, OpSectionEnd, code[4].Op)
	assert.Equal(t, uint32(5), code[0].End)
}

func TestCompileTagKinds(t *testing.T) {
	src := "{{!c}}{{a}}{{{b}}}{{&c}}{{:d}}{{<e}}"
	prog, err := Compile("t.mustache", []byte(src))
	require.NoError(t, err)

	code := prog.Instructions()
	var ops []OpCode
	var names []string
	for i := 1; i < len(code)-1; i++ {
		ops = append(ops, code[i].Op)
		names = append(names, string(prog.name(&code[i])))
	}
	assert.Equal(t, []OpCode{OpWriteArg, OpWriteArgRaw, OpWriteArgRaw, OpWriteArg, OpWriteArg}, ops)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
}

func TestCompileSectionShape(t *testing.T) {
	prog, err := Compile("t.mustache", []byte("{{#items}}[{{.}}]{{/items}}"))
	require.NoError(t, err)

	code := prog.Instructions()
	require.Len(t, code, 7)
	start := code[1]
	assert.Equal(t, OpSectionStart, start.Op)
	assert.Equal(t, "items", string(prog.name(&start)))
	// body is "[{{.}}]"
	assert.Equal(t, uint32(7), start.Len)
	assert.Equal(t, OpSectionEnd, code[start.End-1].Op)
	assert.Equal(t, start.NamePos, code[start.End-1].NamePos)
}

func TestCompileInvertedSection(t *testing.T) {
	prog, err := Compile("t.mustache", []byte("{{^missing}}none{{/missing}}"))
	require.NoError(t, err)

	code := prog.Instructions()
	assert.Equal(t, OpSectionStartInv, code[1].Op)
	assert.Equal(t, "missing", string(prog.name(&code[1])))
}

func TestCompileDelimiterChange(t *testing.T) {
	prog, err := Compile("t.mustache", []byte("{{=<% %>=}}<%x%>{{y}}"))
	require.NoError(t, err)

	code := prog.Instructions()
	// After the change, {{y}} is literal text.
	require.Equal(t, OpWriteArg, code[1].Op)
	assert.Equal(t, "x", string(prog.name(&code[1])))
	assert.Equal(t, OpWriteText, code[2].Op)
}

func TestCompileDelimiterTooLong(t *testing.T) {
	_, err := Compile("t.mustache", []byte("{{=aaaaaaaaaaaa bb=}}"))
	assert.ErrorIs(t, err, ErrDelimiterTooLong)
}

func TestCompileClosureMismatch(t *testing.T) {
	cases := map[string]string{
		"wrong name":   "{{#a}}x{{/b}}",
		"unclosed":     "{{#a}}x",
		"stray close":  "x{{/a}}",
		"open tag eof": "x{{y",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile("t.mustache", []byte(src))
			assert.ErrorIs(t, err, ErrClosureMismatch)
		})
	}
}

func TestCompileEmptyTemplate(t *testing.T) {
	_, err := Compile("t.mustache", nil)
	assert.ErrorIs(t, err, ErrEmptyTemplate)
}

func TestCompileNameTooLong(t *testing.T) {
	src := "{{" + strings.Repeat("n", maxNameLen+1) + "}}"
	_, err := Compile("t.mustache", []byte(src))
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestCompileFileNotFound(t *testing.T) {
	l := &Loader{Resolver: mapResolver{}}
	_, err := l.CompileFile("missing.mustache")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCompilePartialNotFound(t *testing.T) {
	l := &Loader{Resolver: mapResolver{"t.mustache": "A{{>nope}}B"}}
	_, err := l.CompileFile("t.mustache")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestCompilePartialExtensionFallback(t *testing.T) {
	prog := compileWith(t, mapResolver{
		"t.mustache": "A{{>p}}B",
		"p.mustache": "{{n}}",
	}, "t.mustache")

	entries := prog.Templates()
	require.Len(t, entries, 2)
	assert.Equal(t, "t.mustache", entries[0].Name)
	assert.Equal(t, "p.mustache", entries[1].Name)
}

func TestCompilePartialRelativeToReferrer(t *testing.T) {
	prog := compileWith(t, mapResolver{
		"dir/t.mustache":   "{{>inc}}",
		"dir/inc.mustache": "ok",
	}, "dir/t.mustache")

	entries := prog.Templates()
	require.Len(t, entries, 2)
	assert.Equal(t, "dir/inc.mustache", entries[1].Name)
	assert.Equal(t, 4, entries[1].PathLen)
}

func TestCompilePartialDedup(t *testing.T) {
	prog := compileWith(t, mapResolver{
		"t.mustache": "{{>p}}{{>p}}{{>p}}",
		"p.mustache": "x",
	}, "t.mustache")

	// N references, one directory entry and one copy of the source.
	entries := prog.Templates()
	require.Len(t, entries, 2)

	gotos := 0
	for _, in := range prog.Instructions() {
		if in.Op == OpSectionGoto {
			gotos++
			target := prog.Instructions()[in.Len]
			assert.Contains(t, []OpCode{OpSectionStart, OpSectionGoto}, target.Op)
			assert.Equal(t, entries[1].InstStart, int(in.Len))
		}
	}
	assert.Equal(t, 2, gotos)
}

func TestCompileSelfReference(t *testing.T) {
	l := &Loader{Resolver: mapResolver{}}
	prog, err := l.Compile("self", []byte("{{#more}}{{>self}}{{/more}}end"))
	require.NoError(t, err)

	var sawGoto bool
	for _, in := range prog.Instructions() {
		if in.Op == OpSectionGoto {
			sawGoto = true
			assert.Equal(t, uint32(0), in.Len)
		}
	}
	assert.True(t, sawGoto)
}

func TestCompileNestingLimit(t *testing.T) {
	build := func(depth int) []byte {
		var b strings.Builder
		for i := 0; i < depth; i++ {
			b.WriteString("{{#a}}")
		}
		b.WriteString("x")
		for i := 0; i < depth; i++ {
			b.WriteString("{{/a}}")
		}
		return []byte(b.String())
	}

	_, err := Compile("t.mustache", build(MaxNesting))
	assert.NoError(t, err)

	_, err = Compile("t.mustache", build(MaxNesting+1))
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestCompilePartialDepthLimit(t *testing.T) {
	// a chain of partials longer than the parsing stack
	files := mapResolver{}
	for i := 0; i < MaxNesting+1; i++ {
		files[partialName(i)+".mustache"] = "{{>" + partialName(i+1) + "}}"
	}
	files[partialName(MaxNesting+1)+".mustache"] = "leaf"

	l := &Loader{Resolver: files}
	_, err := l.CompileFile(partialName(0) + ".mustache")
	assert.ErrorIs(t, err, ErrTooDeep)
}

func partialName(i int) string {
	return fmt.Sprintf("p%03d", i)
}

func TestDirectoryChainCoversBlob(t *testing.T) {
	prog := compileWith(t, mapResolver{
		"t.mustache": "{{>a}}{{>b}}",
		"a.mustache": "A",
		"b.mustache": "B{{>a}}",
	}, "t.mustache")

	entries := prog.Templates()
	require.Len(t, entries, 3)
	for i, e := range entries {
		if i > 0 {
			assert.Equal(t, entries[i-1].DataEnd, e.Offset)
		}
	}
	assert.Equal(t, prog.DataLen(), entries[len(entries)-1].DataEnd)
}

func TestSectionEndPlacementInvariant(t *testing.T) {
	prog := compileWith(t, mapResolver{
		"t.mustache": "{{#a}}{{#b}}x{{/b}}{{^c}}y{{/c}}{{/a}}{{>p}}",
		"p.mustache": "{{#d}}z{{/d}}",
	}, "t.mustache")

	code := prog.Instructions()
	for i := range code {
		in := &code[i]
		if in.Op != OpSectionStart && in.Op != OpSectionStartInv {
			continue
		}
		require.Greater(t, int(in.End), i)
		assert.Equal(t, OpSectionEnd, code[in.End-1].Op)
	}
}

func TestCompileDeterministic(t *testing.T) {
	files := mapResolver{
		"t.mustache": "A{{>p}}{{#s}}{{v}}{{/s}}",
		"p.mustache": "{{x}}",
	}
	p1 := compileWith(t, files, "t.mustache")
	p2 := compileWith(t, files, "t.mustache")
	assert.Equal(t, p1.Instructions(), p2.Instructions())
	assert.Equal(t, p1.DataLen(), p2.DataLen())
}

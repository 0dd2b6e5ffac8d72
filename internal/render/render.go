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

// Package render is the reference host around the mustache engine: it
// implements the engine's callback set over decoded JSON values
// (map[string]any, []any, scalars) and assembles the output into a
// per-invocation buffer. The CLI, the daemon, and the end-to-end tests all
// render through it.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/dotandev/stache/internal/mustache"
)

// Context wraps one scope value. Scopes are compared by pointer identity on
// the evaluation stack, so every rebinding allocates a fresh Context.
type Context struct {
	value any
}

// NewContext wraps a decoded data value for use as evaluator udata.
func NewContext(v any) *Context { return &Context{value: v} }

// Value returns the wrapped data value.
func (c *Context) Value() any { return c.value }

// Handler implements mustache.Handler over Context scopes. A Handler is
// single-use and not safe for concurrent rendering; create one per call.
type Handler struct {
	out bytes.Buffer
}

// Output returns everything rendered so far.
func (h *Handler) Output() string { return h.out.String() }

func ctxOf(s *mustache.Section) *Context {
	if c, ok := s.Udata1.(*Context); ok {
		return c
	}
	return nil
}

// lookup resolves a (possibly dotted) name against the section's scope,
// walking enclosing scopes until one contains the first path element.
func (h *Handler) lookup(s *mustache.Section, name string) (any, bool) {
	if name == "." {
		if c := ctxOf(s); c != nil {
			return c.value, true
		}
		return nil, false
	}
	parts := strings.Split(name, ".")
	for sec := s; sec != nil; sec = sec.Parent() {
		c := ctxOf(sec)
		if c == nil {
			continue
		}
		if v, ok := lookupPath(c.value, parts); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(v any, parts []string) (any, bool) {
	for _, part := range parts {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

// Text implements mustache.Handler.
func (h *Handler) Text(_ *mustache.Section, text []byte) error {
	h.out.Write(text)
	return nil
}

// Arg implements mustache.Handler. Missing names render as the empty string.
func (h *Handler) Arg(s *mustache.Section, name []byte, escape bool) error {
	v, ok := h.lookup(s, string(name))
	if !ok || v == nil {
		return nil
	}
	str := stringify(v)
	if escape {
		template.HTMLEscape(&h.out, []byte(str))
	} else {
		h.out.WriteString(str)
	}
	return nil
}

// SectionTest implements mustache.Handler: array length for arrays, 1 for
// truthy values, 0 for falsy or missing ones. Callable sections bound to a
// func() string are invoked directly and suppress default rendering.
func (h *Handler) SectionTest(s *mustache.Section, name []byte, callable bool) (int, error) {
	v, ok := h.lookup(s, string(name))
	if !ok || v == nil {
		return 0, nil
	}
	switch t := v.(type) {
	case []any:
		return len(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		if t == "" {
			return 0, nil
		}
		return 1, nil
	case float64:
		if t == 0 {
			return 0, nil
		}
		return 1, nil
	case int:
		if t == 0 {
			return 0, nil
		}
		return 1, nil
	case func() string:
		if callable {
			h.out.WriteString(t())
			return 0, nil
		}
		return 1, nil
	default:
		return 1, nil
	}
}

// SectionStart implements mustache.Handler: rebinds the frame's scope to the
// current iteration element.
func (h *Handler) SectionStart(s *mustache.Section, name []byte, index int) error {
	v, ok := h.lookup(s, string(name))
	if !ok {
		s.Udata1 = NewContext(nil)
		return nil
	}
	if arr, isArr := v.([]any); isArr {
		if len(arr) == 0 {
			// Inverted section over an empty list: keep the enclosing scope.
			return nil
		}
		if index >= len(arr) {
			return fmt.Errorf("section %q: iteration %d out of range", name, index)
		}
		s.Udata1 = NewContext(arr[index])
		return nil
	}
	s.Udata1 = NewContext(v)
	return nil
}

// FormattingError implements mustache.Handler: the partial output buffer is
// discarded so a failed render never leaks half a document.
func (h *Handler) FormattingError(_, _ any) {
	h.out.Reset()
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case func() string:
		return t()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Render evaluates a compiled program against decoded data.
func Render(p *mustache.Program, data any) (string, error) {
	h := &Handler{}
	if err := p.Eval(NewContext(data), nil, h); err != nil {
		return "", err
	}
	return h.Output(), nil
}

// RenderJSON evaluates a compiled program against raw JSON. Empty input
// renders with an empty scope.
func RenderJSON(p *mustache.Program, raw []byte) (string, error) {
	var data any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return "", fmt.Errorf("invalid data document: %w", err)
		}
	}
	return Render(p, data)
}

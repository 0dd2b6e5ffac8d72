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

package render

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/stache/internal/mustache"
)

func compile(t *testing.T, src string) *mustache.Program {
	t.Helper()
	prog, err := mustache.Compile("t.mustache", []byte(src))
	require.NoError(t, err)
	return prog
}

func TestRenderVariable(t *testing.T) {
	prog := compile(t, "Hello {{name}}!")
	out, err := Render(prog, map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", out)
}

func TestRenderMissingIsEmpty(t *testing.T) {
	prog := compile(t, "[{{missing}}]")
	out, err := Render(prog, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRenderEscaping(t *testing.T) {
	prog := compile(t, "{{v}}|{{{v}}}|{{&v}}")
	out, err := Render(prog, map[string]any{"v": `<a href="x">&`})
	require.NoError(t, err)
	assert.Equal(t, `&lt;a href=&#34;x&#34;&gt;&amp;|<a href="x">&|<a href="x">&`, out)
}

func TestRenderSectionList(t *testing.T) {
	prog := compile(t, "{{#items}}[{{.}}]{{/items}}")
	out, err := Render(prog, map[string]any{"items": []any{1.0, 2.0, 3.0}})
	require.NoError(t, err)
	assert.Equal(t, "[1][2][3]", out)
}

func TestRenderInvertedSection(t *testing.T) {
	prog := compile(t, "{{^missing}}none{{/missing}}")
	out, err := Render(prog, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "none", out)
}

func TestRenderDottedNames(t *testing.T) {
	prog := compile(t, "{{a.b.c}}")
	data := map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}}
	out, err := Render(prog, data)
	require.NoError(t, err)
	assert.Equal(t, "deep", out)
}

func TestRenderScopeFallback(t *testing.T) {
	prog := compile(t, "{{#list}}{{label}}:{{.}} {{/list}}")
	data := map[string]any{
		"label": "item",
		"list":  []any{"a", "b"},
	}
	out, err := Render(prog, data)
	require.NoError(t, err)
	assert.Equal(t, "item:a item:b ", out)
}

func TestRenderFalsyValues(t *testing.T) {
	cases := []struct {
		name string
		data map[string]any
		want string
	}{
		{"false", map[string]any{"x": false}, "B"},
		{"zero", map[string]any{"x": 0.0}, "B"},
		{"empty string", map[string]any{"x": ""}, "B"},
		{"empty list", map[string]any{"x": []any{}}, "B"},
		{"missing", map[string]any{}, "B"},
		{"truthy", map[string]any{"x": "y"}, "A"},
	}
	prog := compile(t, "{{#x}}A{{/x}}{{^x}}B{{/x}}")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Render(prog, tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestRenderLambdaSection(t *testing.T) {
	prog := compile(t, "[{{#f}}ignored{{/f}}]")
	out, err := Render(prog, map[string]any{"f": func() string { return "called" }})
	require.NoError(t, err)
	assert.Equal(t, "[called]", out)
}

func TestRenderJSONDocument(t *testing.T) {
	prog := compile(t, "{{#users}}{{name}};{{/users}}")
	out, err := RenderJSON(prog, []byte(`{"users":[{"name":"ada"},{"name":"linus"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "ada;linus;", out)
}

func TestRenderJSONInvalid(t *testing.T) {
	prog := compile(t, "x")
	_, err := RenderJSON(prog, []byte("{nope"))
	assert.Error(t, err)
}

func TestRenderConcurrentSharedProgram(t *testing.T) {
	prog := compile(t, "{{#items}}{{.}},{{/items}}{{tag}}")

	const workers = 8
	want := make([]string, workers)
	for i := range want {
		out, err := Render(prog, workerData(i))
		require.NoError(t, err)
		want[i] = out
	}

	var wg sync.WaitGroup
	got := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = Render(prog, workerData(i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, want[i], got[i])
	}
}

func workerData(i int) map[string]any {
	return map[string]any{
		"items": []any{fmt.Sprintf("w%d", i), "x"},
		"tag":   i,
	}
}

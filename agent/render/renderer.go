// Package render defines the template renderer used to expand agent prompts
// and greetings, plus a text/template based default implementation.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/BaSui01/voiceflow/types"
)

// Renderer expands a template against a variable map.
type Renderer interface {
	Render(text string, vars map[string]any) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(text string, vars map[string]any) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(text string, vars map[string]any) (string, error) {
	return f(text, vars)
}

// blankFunc is appended to every printing action; it turns a nil result
// into "" so missing variables print nothing.
const blankFunc = "orEmpty"

// TextRenderer renders Go text/template syntax. Missing variables render
// empty; `{{ .name | default "there" }}` supplies a fallback.
type TextRenderer struct {
	funcs template.FuncMap
}

// NewTextRenderer creates a renderer with the default helper functions.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{funcs: template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		blankFunc: func(val any) any {
			if val == nil {
				return ""
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
		},
		"join": func(sep string, items []any) string {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = fmt.Sprintf("%v", item)
			}
			return strings.Join(parts, sep)
		},
	}}
}

// Render implements Renderer. Failures are returned as RENDER_ERROR.
func (r *TextRenderer) Render(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(r.funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", types.NewError(types.ErrRenderError, "parse template").WithCause(err)
	}
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			blankMissing(t.Tree, t.Tree.Root)
		}
	}

	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", types.NewError(types.ErrRenderError, "execute template").WithCause(err)
	}

	return buf.String(), nil
}

// blankMissing pipes every printing action under n through blankFunc.
// Conditions and range pipelines are left alone so they still see nil.
func blankMissing(tree *parse.Tree, n parse.Node) {
	switch n := n.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			blankMissing(tree, child)
		}
	case *parse.ActionNode:
		if len(n.Pipe.Decl) > 0 {
			return
		}
		id := parse.NewIdentifier(blankFunc).SetTree(tree).SetPos(n.Pos)
		n.Pipe.Cmds = append(n.Pipe.Cmds, &parse.CommandNode{
			NodeType: parse.NodeCommand,
			Pos:      n.Pos,
			Args:     []parse.Node{id},
		})
	case *parse.IfNode:
		blankMissing(tree, n.List)
		blankMissing(tree, n.ElseList)
	case *parse.RangeNode:
		blankMissing(tree, n.List)
		blankMissing(tree, n.ElseList)
	case *parse.WithNode:
		blankMissing(tree, n.List)
		blankMissing(tree, n.ElseList)
	}
}

// RenderOrRaw renders text and falls back to the raw template on failure.
// The returned error is informational only; callers log it.
func RenderOrRaw(r Renderer, text string, vars map[string]any) (string, error) {
	if r == nil {
		return text, nil
	}
	out, err := r.Render(text, vars)
	if err != nil {
		return text, err
	}
	return out, nil
}

// MergeVars layers each map on top of the previous ones; later maps win.
func MergeVars(layers ...map[string]any) map[string]any {
	size := 0
	for _, l := range layers {
		size += len(l)
	}
	merged := make(map[string]any, size)
	for _, l := range layers {
		for k, v := range l {
			merged[k] = v
		}
	}
	return merged
}

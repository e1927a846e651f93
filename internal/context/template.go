package context

import (
	"fmt"
	"strings"
)

type templateNodeKind int

const (
	textNode templateNodeKind = iota
	variableNode
	sectionNode
	invertedNode
)

type templateNode struct {
	kind     templateNodeKind
	text     string // literal text, or the raw tag of a variable
	name     string
	children []templateNode
}

// RenderTemplate expands a mustache-like template against data.
//
//	{{name}}                 the value of name; kept verbatim if data has no such key
//	{{#name}}...{{/name}}    the body, only when data[name] is not blank
//	{{^name}}...{{/name}}    the body, only when data[name] is blank
//
// A newline directly after a section tag is dropped so that sections can
// sit on lines of their own. Values are inserted as-is and never expanded
// again.
func RenderTemplate(tmpl string, data map[string]string) (string, error) {
	nodes, err := parseTemplate(tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	renderNodes(&b, nodes, data)
	return b.String(), nil
}

func parseTemplate(tmpl string) ([]templateNode, error) {
	type frame struct {
		kind   templateNodeKind
		name   string
		offset int
		nodes  []templateNode
	}
	stack := []frame{{}}
	appendNode := func(n templateNode) {
		top := &stack[len(stack)-1]
		top.nodes = append(top.nodes, n)
	}

	pos := 0
	for pos < len(tmpl) {
		start := strings.Index(tmpl[pos:], "{{")
		if start < 0 {
			appendNode(templateNode{kind: textNode, text: tmpl[pos:]})
			break
		}
		start += pos
		if start > pos {
			appendNode(templateNode{kind: textNode, text: tmpl[pos:start]})
		}
		end := strings.Index(tmpl[start+2:], "}}")
		if end < 0 {
			return nil, fmt.Errorf("unclosed tag at offset %d", start)
		}
		end += start + 2
		raw := tmpl[start : end+2]
		tag := strings.TrimSpace(tmpl[start+2 : end])
		pos = end + 2
		if tag == "" {
			return nil, fmt.Errorf("empty tag at offset %d", start)
		}

		switch tag[0] {
		case '#', '^':
			name := strings.TrimSpace(tag[1:])
			if name == "" {
				return nil, fmt.Errorf("section without name at offset %d", start)
			}
			kind := sectionNode
			if tag[0] == '^' {
				kind = invertedNode
			}
			stack = append(stack, frame{kind: kind, name: name, offset: start})
			pos = skipNewline(tmpl, pos)
		case '/':
			name := strings.TrimSpace(tag[1:])
			if len(stack) == 1 {
				return nil, fmt.Errorf("unexpected close of %q at offset %d", name, start)
			}
			top := stack[len(stack)-1]
			if top.name != name {
				return nil, fmt.Errorf("section %q opened at offset %d closed by %q", top.name, top.offset, name)
			}
			stack = stack[:len(stack)-1]
			appendNode(templateNode{kind: top.kind, name: top.name, children: top.nodes})
			pos = skipNewline(tmpl, pos)
		default:
			appendNode(templateNode{kind: variableNode, name: tag, text: raw})
		}
	}

	if len(stack) > 1 {
		top := stack[len(stack)-1]
		return nil, fmt.Errorf("section %q opened at offset %d is never closed", top.name, top.offset)
	}
	return stack[0].nodes, nil
}

func skipNewline(s string, pos int) int {
	if strings.HasPrefix(s[pos:], "\r\n") {
		return pos + 2
	}
	if strings.HasPrefix(s[pos:], "\n") {
		return pos + 1
	}
	return pos
}

func renderNodes(b *strings.Builder, nodes []templateNode, data map[string]string) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.text)
		case variableNode:
			if v, ok := data[n.name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(n.text)
			}
		case sectionNode:
			if strings.TrimSpace(data[n.name]) != "" {
				renderNodes(b, n.children, data)
			}
		case invertedNode:
			if strings.TrimSpace(data[n.name]) == "" {
				renderNodes(b, n.children, data)
			}
		}
	}
}

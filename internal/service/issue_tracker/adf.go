package issue_tracker

import (
	"encoding/json"
	"strings"
)

// Node is one Atlassian Document Format node: either a TextNode or a
// ContainerNode.
type Node interface {
	raw() string
}

type TextNode struct {
	Text string
}

type ContainerNode struct {
	Type     string
	Children []Node
}

// Document wraps a decoded ADF tree. A null, absent or non-object body
// decodes to a nil Root.
type Document struct {
	Root Node
}

func (d *Document) UnmarshalJSON(data []byte) error {
	d.Root = decodeNode(data)
	return nil
}

// decodeNode skips anything that is not an object, and ignores fields of
// the wrong JSON type, so one malformed node never loses the rest of a body.
func decodeNode(data []byte) Node {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil
	}

	var raw struct {
		Type    string
		Text    string
		Content []json.RawMessage
	}
	_ = json.Unmarshal(fields["type"], &raw.Type)
	_ = json.Unmarshal(fields["text"], &raw.Text)
	_ = json.Unmarshal(fields["content"], &raw.Content)

	children := make([]Node, 0, len(raw.Content))
	for _, c := range raw.Content {
		if child := decodeNode(c); child != nil {
			children = append(children, child)
		}
	}

	if raw.Type == "text" && len(children) == 0 {
		return TextNode{Text: raw.Text}
	}
	container := ContainerNode{Type: raw.Type, Children: children}
	if raw.Type == "text" {
		return textWithChildren{TextNode{Text: raw.Text}, container}
	}
	return container
}

// textWithChildren covers a text node that also carries content; ADF never
// emits one but the walk treats it like any other node.
type textWithChildren struct {
	TextNode
	ContainerNode
}

// Flatten returns the plain text of node: its own text followed by every
// child's flattened text, trimmed.
func Flatten(node Node) string {
	if node == nil {
		return ""
	}
	return strings.TrimSpace(node.raw())
}

func (n TextNode) raw() string {
	return n.Text
}

func (n ContainerNode) raw() string {
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(Flatten(c))
	}
	return b.String()
}

func (n textWithChildren) raw() string {
	return n.TextNode.raw() + n.ContainerNode.raw()
}

// Package ptree defines the parse-tree shape pPEG produces: a node is
// either a (name, text) leaf or a (name, children) branch. Its wire
// form is a two-element JSON array, [name, text] or [name, children].
package ptree

import (
	"encoding/json"
	"fmt"
)

// Node is a ptree node. Exactly one of Text or Children is
// meaningful, selected by IsLeaf.
type Node struct {
	Name     string
	Text     string
	Children []Node
	IsLeaf   bool
}

// Leaf builds a (name, text) node.
func Leaf(name, text string) Node {
	return Node{Name: name, Text: text, IsLeaf: true}
}

// Branch builds a (name, children) node. children may be empty or nil;
// nil is replaced with an empty slice, so an empty-children branch
// round-trips through JSON as `[]` rather than `null`.
func Branch(name string, children []Node) Node {
	if children == nil {
		children = []Node{}
	}
	return Node{Name: name, Children: children, IsLeaf: false}
}

// MarshalJSON encodes a Node as the stable wire form: a two-element
// array of [name, text] for a leaf, or [name, [...]] for a branch.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsLeaf {
		return json.Marshal([2]interface{}{n.Name, n.Text})
	}
	return json.Marshal([2]interface{}{n.Name, n.Children})
}

// UnmarshalJSON decodes the two-element wire form back into a Node.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ptree: malformed node: %w", err)
	}
	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return fmt.Errorf("ptree: malformed node name: %w", err)
	}
	var text string
	if err := json.Unmarshal(raw[1], &text); err == nil {
		*n = Leaf(name, text)
		return nil
	}
	var children []Node
	if err := json.Unmarshal(raw[1], &children); err != nil {
		return fmt.Errorf("ptree: node %q is neither a leaf nor a branch: %w", name, err)
	}
	*n = Branch(name, children)
	return nil
}

// EncodeError renders a failed parse as the literal ["$error", report]
// wire shape.
func EncodeError(err error) ([]byte, error) {
	return json.Marshal([2]string{"$error", err.Error()})
}

// String renders a Node as a readable s-expression, useful for test
// failure output and trace lines.
func (n Node) String() string {
	if n.IsLeaf {
		return fmt.Sprintf("[%s %q]", n.Name, n.Text)
	}
	s := "[" + n.Name
	for _, c := range n.Children {
		s += " " + c.String()
	}
	return s + "]"
}

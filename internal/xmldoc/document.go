// Package xmldoc parses an export into a tree of elements and pulls text
// out of it by tag name.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one element of a parsed document. Tag matching uses the local
// name only, so namespaced exports behave like plain ones.
type Node struct {
	Name     string
	Children []*Node
	parts    []part
}

// part keeps character data and child elements in document order so Text
// can rebuild the element's full text content.
type part struct {
	text  string
	child *Node
}

// Parse reads a whole document. Anything that is not well-formed XML with
// exactly one root element is an error.
func Parse(text string) (*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true

	var root *Node
	stack := []*Node{}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("second root element <%s>", n.Name)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
				parent.parts = append(parent.parts, part{child: n})
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, errors.New("character data outside root element")
				}
				continue
			}
			top := stack[len(stack)-1]
			top.parts = append(top.parts, part{text: string(t)})
		}
	}

	if root == nil {
		return nil, errors.New("no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].Name)
	}
	return root, nil
}

// FindAll returns every descendant named tag, in document order.
func (n *Node) FindAll(tag string) []*Node {
	if n == nil {
		return nil
	}
	out := []*Node{}
	for _, c := range n.Children {
		if c.Name == tag {
			out = append(out, c)
		}
		out = append(out, c.FindAll(tag)...)
	}
	return out
}

// Find returns the first descendant named tag, or nil.
func (n *Node) Find(tag string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == tag {
			return c
		}
		if found := c.Find(tag); found != nil {
			return found
		}
	}
	return nil
}

// Text concatenates all character data beneath the node, untrimmed.
func (n *Node) Text() string {
	var b strings.Builder
	n.writeText(&b)
	return b.String()
}

func (n *Node) writeText(b *strings.Builder) {
	for _, p := range n.parts {
		if p.child != nil {
			p.child.writeText(b)
			continue
		}
		b.WriteString(p.text)
	}
}

package render

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// page is the document scaffold shared by both renderers: html/head/body
// with a title element and the single injected stylesheet.
type page struct {
	doc     *html.Node
	head    *html.Node
	body    *html.Node
	titleEl *html.Node
	styleEl *html.Node
}

func newPage() *page {
	p := &page{}
	p.doc = &html.Node{Type: html.DocumentNode}

	root := elementNode("html")
	p.head = elementNode("head")
	p.body = elementNode("body")
	p.titleEl = elementNode("title")
	p.styleEl = elementNode("style")
	p.styleEl.Attr = []html.Attribute{{Key: "id", Val: StyleElementID}}

	p.head.AppendChild(p.titleEl)
	p.head.AppendChild(p.styleEl)
	root.AppendChild(p.head)
	root.AppendChild(p.body)
	p.doc.AppendChild(root)
	return p
}

func elementNode(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// find resolves a target selector inside the body subtree. Supported forms
// are the vocabulary the backend emits: "body" (page root), "#id", ".class"
// and a bare tag name. Returns nil when nothing matches.
func (p *page) find(sel string) *html.Node {
	if sel == "" || sel == "body" {
		return p.body
	}
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && matchSelector(n, sel) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := p.body.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return found
}

func matchSelector(n *html.Node, sel string) bool {
	switch {
	case strings.HasPrefix(sel, "#"):
		return attr(n, "id") == sel[1:]
	case strings.HasPrefix(sel, "."):
		for _, cls := range strings.Fields(attr(n, "class")) {
			if cls == sel[1:] {
				return true
			}
		}
		return false
	default:
		return n.Data == sel
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func clearChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// contains reports whether n lives in the subtree rooted at root.
func contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func setText(n *html.Node, text string) {
	clearChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func nodeText(n *html.Node) string {
	if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
		return n.FirstChild.Data
	}
	return ""
}

func (p *page) setStylesheet(css string) { setText(p.styleEl, css) }
func (p *page) setTitle(title string)    { setText(p.titleEl, title) }
func (p *page) title() string            { return nodeText(p.titleEl) }

func (p *page) bodyHTML() (string, error) {
	var buf bytes.Buffer
	for c := p.body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render: body html: %w", err)
		}
	}
	return buf.String(), nil
}

func (p *page) documentHTML() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return "", fmt.Errorf("render: document html: %w", err)
	}
	return buf.String(), nil
}

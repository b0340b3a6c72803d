package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/entrhq/dexprobe/pkg/driver"
)

// Snapshot is a cleaned copy of a page's DOM kept for failure diagnosis.
type Snapshot struct {
	URL       string
	Title     string
	HTML      string
	Truncated bool
}

// TakeSnapshot captures the page's current DOM with scripts, styles and other
// noise removed, keeping at most maxLength characters of markup and text.
func TakeSnapshot(p driver.Page, maxLength int) (*Snapshot, error) {
	if maxLength <= 0 {
		maxLength = DefaultSnapshotLength
	}

	raw, err := p.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	snap, err := CleanHTML(raw, maxLength)
	if err != nil {
		return nil, err
	}
	snap.URL = p.URL()
	return snap, nil
}

// CleanHTML parses rawHTML and rebuilds it keeping only structure, text and
// attributes useful for locating elements.
func CleanHTML(rawHTML string, maxLength int) (*Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	c := &cleaner{max: maxLength}
	truncated := c.node(doc, 0)

	return &Snapshot{
		Title:     findTitle(doc),
		HTML:      c.out.String(),
		Truncated: truncated,
	}, nil
}

// cleaner accumulates cleaned markup up to max characters.
type cleaner struct {
	out    strings.Builder
	length int
	max    int
}

// node writes n and its subtree. It returns true once the limit is reached.
func (c *cleaner) node(n *html.Node, depth int) bool {
	if c.length >= c.max {
		return true
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.TextNode:
		return c.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] {
			return false
		}
		return c.element(n, tag, depth)
	default:
		return c.children(n, depth)
	}
}

func (c *cleaner) text(data string) bool {
	text := strings.TrimSpace(data)
	if text == "" {
		return false
	}

	if c.length+len(text) > c.max {
		text = text[:c.max-c.length] + "..."
		c.out.WriteString(text)
		c.length = c.max
		return true
	}

	c.out.WriteString(text)
	c.length += len(text)
	return false
}

func (c *cleaner) element(n *html.Node, tag string, depth int) bool {
	block := blockElements[tag]
	if depth > 0 && block {
		c.newline(depth)
	}

	c.out.WriteString("<")
	c.out.WriteString(tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(&c.out, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	c.out.WriteString(">")
	c.length += len(tag) + 2

	truncated := c.children(n, depth+1)

	if !voidElements[tag] {
		if block {
			c.newline(depth)
		}
		c.out.WriteString("</")
		c.out.WriteString(tag)
		c.out.WriteString(">")
		c.length += len(tag) + 3
	}

	return truncated
}

func (c *cleaner) children(n *html.Node, depth int) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c.node(child, depth) {
			return true
		}
	}
	return false
}

func (c *cleaner) newline(depth int) {
	c.out.WriteString("\n")
	c.out.WriteString(strings.Repeat("  ", depth))
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"embed":    true,
	"object":   true,
	"svg":      true,
	"template": true,
}

var blockElements = map[string]bool{
	"div": true, "p": true, "section": true, "article": true,
	"header": true, "footer": true, "nav": true, "main": true, "aside": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true,
	"table": true, "tr": true, "td": true, "th": true,
	"form": true, "fieldset": true, "dialog": true, "pre": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// globalAttributes are the ones selectors in this repo target.
var globalAttributes = map[string]bool{
	"id":         true,
	"class":      true,
	"role":       true,
	"aria-label": true,
	"name":       true,
}

func keepAttribute(tag, attr string) bool {
	attr = strings.ToLower(attr)

	if globalAttributes[attr] || strings.HasPrefix(attr, "data-") {
		return true
	}

	switch tag {
	case "a":
		return attr == "href"
	case "img":
		return attr == "alt"
	case "input", "textarea", "select":
		// value is dropped so typed secrets never reach artifacts
		return attr == "type" || attr == "placeholder"
	case "button":
		return attr == "type" || attr == "disabled"
	case "label":
		return attr == "for"
	}
	return false
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

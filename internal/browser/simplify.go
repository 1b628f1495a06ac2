package browser

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SimplifyHTML strips a rendered page down to its test-relevant structure:
// scripts, styles, and hidden elements go, and only attributes useful for
// building selectors survive.
func SimplifyHTML(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	simplifyNode(doc)
	cleanupNode(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.String(), nil
}

// simplifyNode recursively simplifies HTML nodes
func simplifyNode(n *html.Node) {
	var toRemove []*html.Node

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		simplifyNode(c)
		if shouldRemoveNode(c) {
			toRemove = append(toRemove, c)
		}
	}
	for _, node := range toRemove {
		n.RemoveChild(node)
	}

	if n.Type == html.ElementNode {
		simplifyAttributes(n)
	}
}

func shouldRemoveNode(n *html.Node) bool {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Meta, atom.Link, atom.Noscript, atom.Iframe:
			return true
		case atom.Svg:
			// Keep layout but drop the path soup
			n.Data = "div"
			n.DataAtom = atom.Div
			n.Attr = []html.Attribute{{Key: "class", Val: "svg-placeholder"}}
			return false
		}

		for _, attr := range n.Attr {
			if attr.Key == "style" && strings.Contains(strings.ReplaceAll(attr.Val, " ", ""), "display:none") {
				return true
			}
			if attr.Key == "hidden" {
				return true
			}
		}
	}

	return n.Type == html.CommentNode
}

// relevantAttrs are the attributes worth keeping for selector construction
var relevantAttrs = map[string]bool{
	"id":              true,
	"class":           true,
	"aria-label":      true,
	"aria-labelledby": true,
	"role":            true,
	"type":            true,
	"name":            true,
	"placeholder":     true,
	"href":            true,
	"src":             true,
	"alt":             true,
	"action":          true,
	"method":          true,
	"value":           true,
	"checked":         true,
	"selected":        true,
	"disabled":        true,
	"readonly":        true,
	"required":        true,
}

func simplifyAttributes(n *html.Node) {
	var keep []html.Attribute
	for _, attr := range n.Attr {
		if strings.HasPrefix(attr.Key, "data-") {
			keep = append(keep, attr)
			continue
		}
		if relevantAttrs[attr.Key] {
			if attr.Key == "class" {
				classes := strings.Fields(attr.Val)
				if len(classes) > 3 {
					attr.Val = strings.Join(classes[:3], " ")
				}
			}
			keep = append(keep, attr)
		}
	}
	n.Attr = keep
}

// cleanupNode removes empty text nodes and normalizes whitespace
func cleanupNode(n *html.Node) {
	var toRemove []*html.Node

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cleanupNode(c)

		if c.Type == html.TextNode {
			c.Data = strings.TrimSpace(c.Data)
			if c.Data == "" {
				toRemove = append(toRemove, c)
			} else {
				c.Data = strings.Join(strings.Fields(c.Data), " ")
			}
		}
	}
	for _, node := range toRemove {
		n.RemoveChild(node)
	}
}

// VisibleText extracts the visible text content of a page.
func VisibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var b strings.Builder
	collectText(doc, &b)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// MetaDescription returns the page's meta description, empty when absent.
func MetaDescription(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	return findMetaDescription(doc)
}

func findMetaDescription(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
		var name, content string
		for _, attr := range n.Attr {
			switch attr.Key {
			case "name", "property":
				name = strings.ToLower(attr.Val)
			case "content":
				content = attr.Val
			}
		}
		if name == "description" || name == "og:description" {
			return content
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if desc := findMetaDescription(c); desc != "" {
			return desc
		}
	}
	return ""
}

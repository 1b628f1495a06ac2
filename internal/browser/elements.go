package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Element is a summarized interactive element on a page.
type Element struct {
	Kind     string // forms, buttons, links, inputs, images, tables
	Tag      string
	Text     string
	Selector string
	Href     string
}

// PageElements groups the interactive elements found on a page by kind.
type PageElements struct {
	Forms   []Element
	Buttons []Element
	Links   []Element
	Inputs  []Element
	Images  []Element
	Tables  []Element
}

// elementKindLimit caps how many elements of each kind are summarized;
// navigation-heavy pages have hundreds of links and the prompts need only a
// representative sample.
const elementKindLimit = 20

// ExtractElements summarizes the interactive elements of a page for prompt
// context and embedding.
func ExtractElements(htmlContent string) (*PageElements, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	pe := &PageElements{}

	doc.Find("form").EachWithBreak(func(i int, s *goquery.Selection) bool {
		pe.Forms = append(pe.Forms, summarize("forms", s))
		return len(pe.Forms) < elementKindLimit
	})
	doc.Find("button, input[type='submit'], input[type='button'], [role='button']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		pe.Buttons = append(pe.Buttons, summarize("buttons", s))
		return len(pe.Buttons) < elementKindLimit
	})
	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		el := summarize("links", s)
		el.Href, _ = s.Attr("href")
		pe.Links = append(pe.Links, el)
		return len(pe.Links) < elementKindLimit
	})
	doc.Find("input, select, textarea").EachWithBreak(func(i int, s *goquery.Selection) bool {
		pe.Inputs = append(pe.Inputs, summarize("inputs", s))
		return len(pe.Inputs) < elementKindLimit
	})
	doc.Find("img[src]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		pe.Images = append(pe.Images, summarize("images", s))
		return len(pe.Images) < elementKindLimit
	})
	doc.Find("table").EachWithBreak(func(i int, s *goquery.Selection) bool {
		pe.Tables = append(pe.Tables, summarize("tables", s))
		return len(pe.Tables) < elementKindLimit
	})

	return pe, nil
}

// summarize builds an element summary with its best available selector
func summarize(kind string, s *goquery.Selection) Element {
	el := Element{Kind: kind}
	if s.Nodes != nil && len(s.Nodes) > 0 {
		el.Tag = s.Nodes[0].Data
	}

	text := strings.TrimSpace(s.Text())
	if text == "" {
		if v, ok := s.Attr("placeholder"); ok {
			text = v
		} else if v, ok := s.Attr("aria-label"); ok {
			text = v
		} else if v, ok := s.Attr("alt"); ok {
			text = v
		} else if v, ok := s.Attr("value"); ok {
			text = v
		}
	}
	if len(text) > 80 {
		text = text[:80]
	}
	el.Text = text

	el.Selector = buildSelector(el.Tag, s)
	return el
}

// buildSelector prefers test ids, then ids, then name/type attributes
func buildSelector(tag string, s *goquery.Selection) string {
	for _, key := range []string{"data-testid", "data-test", "data-cy"} {
		if v, ok := s.Attr(key); ok && v != "" {
			return fmt.Sprintf("[%s='%s']", key, v)
		}
	}
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}

	selector := tag
	if name, ok := s.Attr("name"); ok && name != "" {
		selector += fmt.Sprintf("[name='%s']", name)
	} else if typ, ok := s.Attr("type"); ok && typ != "" {
		selector += fmt.Sprintf("[type='%s']", typ)
	}
	return selector
}

// Counts returns the number of elements found per kind.
func (pe *PageElements) Counts() map[string]int {
	return map[string]int{
		"forms":   len(pe.Forms),
		"buttons": len(pe.Buttons),
		"links":   len(pe.Links),
		"inputs":  len(pe.Inputs),
		"images":  len(pe.Images),
		"tables":  len(pe.Tables),
	}
}

// Summary renders the elements as prompt-ready text, one section per kind
// that has any elements.
func (pe *PageElements) Summary() string {
	var b strings.Builder
	writeSection(&b, "Forms", pe.Forms)
	writeSection(&b, "Buttons", pe.Buttons)
	writeSection(&b, "Links", pe.Links)
	writeSection(&b, "Inputs", pe.Inputs)
	writeSection(&b, "Images", pe.Images)
	writeSection(&b, "Tables", pe.Tables)
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, elements []Element) {
	if len(elements) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(elements))
	for _, el := range elements {
		line := "- " + el.Selector
		if el.Text != "" {
			line += " " + strings.ReplaceAll(el.Text, "\n", " ")
		}
		if el.Href != "" {
			line += " -> " + el.Href
		}
		b.WriteString(line + "\n")
	}
}

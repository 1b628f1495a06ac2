package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ciciliostudio/probe/internal/chat"
	"github.com/ciciliostudio/probe/internal/logging"
)

// Extractor implements page extraction for the chat engine: fetch the
// rendered page, simplify its HTML, and summarize its interactive elements
// into the text the embedder indexes.
type Extractor struct {
	fetcher *Fetcher
}

func NewExtractor(fetcher *Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

// ExtractPage fetches and distills one page.
func (e *Extractor) ExtractPage(ctx context.Context, url string) (*chat.PageData, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	// Meta tags are stripped by simplification, so read the description
	// from the raw HTML first.
	meta := MetaDescription(page.HTML)

	simplified, err := SimplifyHTML(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("failed to simplify page HTML: %w", err)
	}

	text, err := VisibleText(page.HTML)
	if err != nil {
		return nil, fmt.Errorf("failed to extract page text: %w", err)
	}

	if elements, err := ExtractElements(simplified); err == nil {
		if summary := elements.Summary(); summary != "" {
			text = text + "\n\nInteractive elements:\n" + summary
		}
	} else {
		logging.Warn("Element extraction failed for %s: %v", url, err)
	}

	return &chat.PageData{
		URL:             page.URL,
		Title:           page.Title,
		MetaDescription: meta,
		HTML:            simplified,
		Text:            text,
	}, nil
}

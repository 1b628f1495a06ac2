// Package embeddings indexes extracted page content in an embedded vector
// store so generation prompts can be grounded in the relevant parts of a
// page instead of the whole document.
package embeddings

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/ciciliostudio/probe/internal/chat"
	"github.com/ciciliostudio/probe/internal/logging"
)

// Store holds one vector collection per indexed site. Collections are named
// after the page's domain, so re-analyzing a second page on the same site
// extends the same collection.
type Store struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
	chunkSize int
	topK      int
}

// Options configures a Store. Zero values fall back to defaults.
type Options struct {
	// Path is the persistence directory; empty keeps everything in memory.
	Path      string
	ChunkSize int
	TopK      int
	// OpenAIKey enables OpenAI embeddings. Without it a deterministic
	// local embedding is used, good enough for offline use and tests.
	OpenAIKey string
}

func NewStore(opts Options) (*Store, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.TopK <= 0 {
		opts.TopK = 4
	}

	var db *chromem.DB
	var err error
	if opts.Path != "" {
		db, err = chromem.NewPersistentDB(opts.Path, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store at %s: %w", opts.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	embedFunc := localEmbeddingFunc()
	if opts.OpenAIKey != "" {
		embedFunc = chromem.NewEmbeddingFuncOpenAI(opts.OpenAIKey, chromem.EmbeddingModelOpenAI3Small)
	}

	return &Store{
		db:        db,
		embedFunc: embedFunc,
		chunkSize: opts.ChunkSize,
		topK:      opts.TopK,
	}, nil
}

var collectionNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// CollectionName derives the collection name from a page URL's domain.
func CollectionName(pageURL string) string {
	domain := pageURL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		domain = u.Host
	}
	name := collectionNameChars.ReplaceAllString(domain, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "unknown"
	}
	return "web_" + name
}

// IndexPage stores the page's content chunks. It reports whether new
// embeddings were created; a page whose URL is already indexed is skipped.
func (s *Store) IndexPage(ctx context.Context, page *chat.PageData) (bool, error) {
	name := CollectionName(page.URL)
	collection, err := s.db.GetOrCreateCollection(name, nil, s.embedFunc)
	if err != nil {
		return false, fmt.Errorf("failed to open collection %s: %w", name, err)
	}

	// One indexing pass per page URL.
	if collection.Count() > 0 {
		existing, err := collection.Query(ctx, page.URL, 1, map[string]string{"url": page.URL}, nil)
		if err == nil && len(existing) > 0 {
			logging.Debug("Page %s already indexed in %s", page.URL, name)
			return false, nil
		}
	}

	var docs []chromem.Document
	addDoc := func(kind, content string, n int) {
		if strings.TrimSpace(content) == "" {
			return
		}
		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("%s#%s-%d", page.URL, kind, n),
			Content: content,
			Metadata: map[string]string{
				"url":   page.URL,
				"kind":  kind,
				"title": page.Title,
			},
		})
	}

	if page.Title != "" || page.MetaDescription != "" {
		addDoc("title", strings.TrimSpace(fmt.Sprintf("%s - %s", page.Title, page.MetaDescription)), 0)
	}
	for i, chunk := range ChunkText(page.Text, s.chunkSize) {
		addDoc("text", chunk, i)
	}

	if len(docs) == 0 {
		return false, nil
	}
	if err := collection.AddDocuments(ctx, docs, 2); err != nil {
		return false, fmt.Errorf("failed to index page content: %w", err)
	}
	logging.Info("Indexed %d chunks for %s into %s", len(docs), page.URL, name)
	return true, nil
}

// RelevantContext returns prompt-ready context for a query against the
// indexed content of url's domain. Empty when nothing relevant is stored.
func (s *Store) RelevantContext(ctx context.Context, query, pageURL string) (string, error) {
	name := CollectionName(pageURL)
	collection := s.db.GetCollection(name, s.embedFunc)
	if collection == nil {
		return "", nil
	}

	n := s.topK
	if count := collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return "", nil
	}
	if strings.TrimSpace(query) == "" {
		query = pageURL
	}

	results, err := collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to query collection %s: %w", name, err)
	}

	var b strings.Builder
	for _, res := range results {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(res.Content))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ChunkText splits text into chunks of roughly size characters, breaking at
// word boundaries.
func ChunkText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	words := strings.Fields(text)
	var chunks []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

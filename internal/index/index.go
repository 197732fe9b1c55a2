// Package index builds per-run retrieval indexes over collected documents
// and answers questions against them.
package index

import (
	"encoding/json"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
)

const (
	// DefaultTopK is the number of passages returned per retrieval query.
	DefaultTopK = 4
	// DefaultScoreThreshold filters out weakly matching passages.
	DefaultScoreThreshold = 0.6
)

// Passage is one retrieved chunk with its provenance.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
}

// chunkDoc is what gets indexed per chunk.
type chunkDoc struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// handle is one in-memory index plus chunk metadata.
type handle struct {
	index bleve.Index
	meta  map[string]chunkDoc
}

// Registry holds live retrieval indexes keyed by opaque handle IDs. Run
// states store only the ID, so a restored state from a previous process has
// a dangling handle and retrieval degrades cleanly.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*handle)}
}

// Build gathers every document with non-empty text plus the synthesis
// collections rendered as JSON blocks, chunks them, and indexes the chunks
// in-memory. Returns the handle ID and the chunk count; zero chunks yields
// an empty handle ID and no error.
func (r *Registry) Build(state *model.RunState) (string, int, error) {
	type block struct {
		text   string
		source string
		title  string
		url    string
	}

	var blocks []block
	for _, doc := range state.CollectedDocuments {
		text := doc.FullText
		if text == "" {
			text = doc.Summary
		}
		if text == "" {
			continue
		}
		blocks = append(blocks, block{text: text, source: doc.Source, title: doc.Title, url: doc.URL})
	}

	// Synthesis outputs are indexed too, so retrieval can answer questions
	// about the analysis itself.
	for _, b := range []struct {
		title string
		v     any
	}{
		{"Market Trends Analysis", state.Trends},
		{"Market Opportunities", state.Opportunities},
		{"Strategic Recommendations", state.Recommendations},
	} {
		rendered, err := json.MarshalIndent(b.v, "", "  ")
		if err != nil || len(rendered) <= 2 {
			continue
		}
		blocks = append(blocks, block{text: string(rendered), source: "synthesis", title: b.title})
	}

	var chunks []chunkDoc
	for _, b := range blocks {
		for _, c := range Chunk(b.text, ChunkSize, ChunkOverlap) {
			chunks = append(chunks, chunkDoc{Text: c, Source: b.source, Title: b.title, URL: b.url})
		}
	}
	if len(chunks) == 0 {
		zap.L().Warn("nothing to index", zap.String("run_id", state.RunID))
		return "", 0, nil
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return "", 0, eris.Wrap(err, "index: create")
	}

	h := &handle{index: idx, meta: make(map[string]chunkDoc, len(chunks))}
	for i, c := range chunks {
		id := uuid.New().String()
		if err := idx.Index(id, c); err != nil {
			return "", 0, eris.Wrapf(err, "index: chunk %d", i)
		}
		h.meta[id] = c
	}

	handleID := uuid.New().String()
	r.mu.Lock()
	r.handles[handleID] = h
	r.mu.Unlock()

	zap.L().Info("retrieval index built",
		zap.String("run_id", state.RunID),
		zap.String("handle", handleID),
		zap.Int("chunks", len(chunks)),
	)
	return handleID, len(chunks), nil
}

// Query searches the index behind handleID. Hits below threshold are
// dropped; at most k passages return, best first.
func (r *Registry) Query(handleID, question string, k int, threshold float64) ([]Passage, error) {
	r.mu.RLock()
	h, ok := r.handles[handleID]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Errorf("index: unknown handle %q", handleID)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	query := bleve.NewQueryStringQuery(question)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := h.index.Search(req)
	if err != nil {
		return nil, eris.Wrap(err, "index: search")
	}

	var passages []Passage
	for _, hit := range res.Hits {
		if hit.Score < threshold {
			continue
		}
		c := h.meta[hit.ID]
		passages = append(passages, Passage{
			Text:   c.Text,
			Source: c.Source,
			Title:  c.Title,
			URL:    c.URL,
			Score:  hit.Score,
		})
	}
	return passages, nil
}

// Release drops the index behind handleID, freeing its memory.
func (r *Registry) Release(handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[handleID]; ok {
		h.index.Close()
		delete(r.handles, handleID)
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

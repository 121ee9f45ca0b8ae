// Package retrieval provides deterministic keyword retrieval over the
// reference document corpus. Documents are chunked once at index build; a
// query scores chunks by weighted term overlap with stable tie-breaking so
// identical queries always return identical fragments.
package retrieval

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"retailcopilot/internal/logging"
	"retailcopilot/internal/types"
)

// Config controls chunking at index build time.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the chunking defaults.
func DefaultConfig() Config {
	return Config{ChunkSize: 200, ChunkOverlap: 40}
}

// chunk is an indexed piece of one document with precomputed term counts.
type chunk struct {
	id     string
	source string
	pos    int
	text   string
	terms  map[string]int
}

// Index holds the chunked corpus. Build once, retrieve many times; the index
// is read-only after construction.
type Index struct {
	chunks []chunk
}

var paragraphSplit = regexp.MustCompile(`\n{2,}`)

// BuildIndex scans docsDir for *.md files (sorted by name) and chunks them.
// An empty or missing corpus yields an empty index, not an error, so the
// pipeline can degrade to structured-only answers.
func BuildIndex(docsDir string, cfg Config) (*Index, error) {
	if cfg.ChunkSize <= 0 {
		cfg = DefaultConfig()
	}

	entries, err := os.ReadDir(docsDir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Retrieval("docs dir %s missing, index is empty", docsDir)
			return &Index{}, nil
		}
		return nil, fmt.Errorf("failed to read docs dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	ix := &Index{}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(docsDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read doc %s: %w", name, err)
		}
		stem := strings.TrimSuffix(name, ".md")
		for i, text := range chunkText(string(data), cfg.ChunkSize, cfg.ChunkOverlap) {
			ix.chunks = append(ix.chunks, chunk{
				id:     fmt.Sprintf("%s::chunk%d", stem, i),
				source: name,
				pos:    i,
				text:   text,
				terms:  termCounts(text),
			})
		}
	}

	logging.Retrieval("indexed %d chunks from %d documents", len(ix.chunks), len(names))
	return ix, nil
}

// chunkText splits text into paragraphs, then slides a fixed window over
// paragraphs longer than the chunk size. Deterministic.
func chunkText(text string, size, overlap int) []string {
	var chunks []string
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= size {
			chunks = append(chunks, para)
			continue
		}
		step := size - overlap
		if step <= 0 {
			step = size
		}
		for i := 0; i < len(para); i += step {
			end := i + size
			if end > len(para) {
				end = len(para)
			}
			chunks = append(chunks, strings.TrimSpace(para[i:end]))
			if end == len(para) {
				break
			}
		}
	}
	return chunks
}

// Retrieve returns the top k fragments for a query, ordered by score
// descending then fragment id ascending. Fragments with zero score still
// fill the quota, matching the retriever boundary contract of always
// returning k results when the corpus has them.
func (ix *Index) Retrieve(query string, k int) ([]types.Fragment, error) {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}

	queryTerms := make(map[string]bool)
	for term := range termCounts(query) {
		queryTerms[term] = true
	}

	frags := make([]types.Fragment, 0, len(ix.chunks))
	for _, c := range ix.chunks {
		score := 0.0
		for term := range queryTerms {
			score += float64(c.terms[term])
		}
		frags = append(frags, types.Fragment{
			ID:       c.id,
			Source:   c.source,
			Position: c.pos,
			Text:     c.text,
			Score:    score,
		})
	}

	sort.Slice(frags, func(i, j int) bool {
		if frags[i].Score != frags[j].Score {
			return frags[i].Score > frags[j].Score
		}
		return frags[i].ID < frags[j].ID
	})

	if len(frags) > k {
		frags = frags[:k]
	}
	logging.Retrieval("query %q -> %d fragments", query, len(frags))
	return frags, nil
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int {
	return len(ix.chunks)
}

// termCounts tokenizes to lowercase alphanumeric terms and counts them,
// dropping stopwords and single characters.
func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		term := b.String()
		b.Reset()
		if len(term) <= 1 || stopwords[term] {
			return
		}
		counts[term]++
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return counts
}

// stopwords are too common to carry retrieval signal.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "at": true, "by": true, "from": true, "as": true,
	"and": true, "but": true, "or": true, "not": true, "no": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "what": true, "which": true, "how": true,
	"all": true, "any": true, "each": true, "per": true,
	"do": true, "does": true, "did": true, "has": true, "have": true,
	"had": true, "will": true, "would": true, "can": true, "may": true,
}

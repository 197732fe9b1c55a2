package index

import "strings"

const (
	// ChunkSize is the target chunk length in characters.
	ChunkSize = 1000
	// ChunkOverlap is how many trailing characters each chunk shares with
	// the next.
	ChunkOverlap = 150
)

// Chunk splits text into overlapping windows. Output is deterministic for a
// given input: fixed stride, final partial chunk kept. Empty or whitespace
// input yields no chunks.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = ChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = ChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	stride := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

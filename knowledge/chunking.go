package knowledge

import "strings"

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
)

type chunkInput struct {
	Text      string
	CharCount int
}

// chunker splits normalized text into fixed windows of size runes that
// overlap by overlap runes. Concatenating the windows in order and dropping
// the first overlap runes of every window after the first reproduces the
// normalized input exactly, so individual windows are never trimmed.
type chunker struct {
	size    int
	overlap int
}

func newChunker(size, overlap int) *chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 10
		}
	}
	return &chunker{size: size, overlap: overlap}
}

func (c *chunker) split(text string) []chunkInput {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	total := len(runes)
	step := c.size - c.overlap
	if step <= 0 {
		step = c.size
	}

	segments := make([]chunkInput, 0, total/step+1)
	for start := 0; start < total; start += step {
		end := start + c.size
		if end > total {
			end = total
		}
		segment := string(runes[start:end])
		segments = append(segments, chunkInput{
			Text:      segment,
			CharCount: end - start,
		})
		if end == total {
			break
		}
	}
	return segments
}

// NormalizeText collapses line endings and trims surrounding whitespace.
// It is the only transformation applied before chunking, so chunk
// reconstruction is defined against its output.
func NormalizeText(value string) string {
	if value == "" {
		return ""
	}
	replaced := strings.ReplaceAll(value, "\r\n", "\n")
	replaced = strings.ReplaceAll(replaced, "\r", "\n")
	return strings.TrimSpace(replaced)
}

// ReassembleChunks inverts split for a given overlap, for verification and
// for rebuilding previews from stored chunks.
func ReassembleChunks(texts []string, overlap int) string {
	if len(texts) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(texts[0])
	for _, text := range texts[1:] {
		runes := []rune(text)
		if overlap > 0 && len(runes) >= overlap {
			runes = runes[overlap:]
		}
		builder.WriteString(string(runes))
	}
	return builder.String()
}

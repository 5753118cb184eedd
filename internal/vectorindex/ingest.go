package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const defaultChunkSize = 1000

// EmbedFunc turns text into an embedding vector.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// SplitText breaks text into chunks of at most maxChars runes, preferring
// paragraph boundaries, then line boundaries, then word boundaries.
func SplitText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = defaultChunkSize
	}
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, piece := range splitLong(para, maxChars) {
			if current.Len() > 0 && runeLen(current.String())+2+runeLen(piece) > maxChars {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// splitLong cuts a paragraph longer than maxChars at word boundaries.
func splitLong(para string, maxChars int) []string {
	if runeLen(para) <= maxChars {
		return []string{para}
	}
	var out []string
	var line strings.Builder
	for _, word := range strings.Fields(para) {
		for runeLen(word) > maxChars {
			if line.Len() > 0 {
				out = append(out, line.String())
				line.Reset()
			}
			r := []rune(word)
			out = append(out, string(r[:maxChars]))
			word = string(r[maxChars:])
		}
		if line.Len() > 0 && runeLen(line.String())+1+runeLen(word) > maxChars {
			out = append(out, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		out = append(out, line.String())
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}

// Ingester embeds source files and stores their chunks in a collection.
type Ingester struct {
	collection *Collection
	embed      EmbedFunc
	chunkSize  int
}

// NewIngester creates an Ingester. chunkSize <= 0 selects the default.
func NewIngester(c *Collection, embed EmbedFunc, chunkSize int) (*Ingester, error) {
	if c == nil {
		return nil, errors.New("vectorindex: collection must not be nil")
	}
	if embed == nil {
		return nil, errors.New("vectorindex: embed func must not be nil")
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Ingester{collection: c, embed: embed, chunkSize: chunkSize}, nil
}

// IngestSource reads one source, embeds each chunk and stores them. Every
// chunk carries the source metadata plus "source" and "chunk" keys.
func (in *Ingester) IngestSource(ctx context.Context, src Source) (int, error) {
	raw, err := os.ReadFile(src.Path)
	if err != nil {
		return 0, fmt.Errorf("vectorindex: read source %q: %w", src.Path, err)
	}
	return in.IngestText(ctx, src.Path, string(raw), src.Metadata)
}

// IngestText splits and stores text under the given source name.
func (in *Ingester) IngestText(ctx context.Context, source, text string, metadata map[string]any) (int, error) {
	chunks := SplitText(text, in.chunkSize)
	if len(chunks) == 0 {
		slog.Warn("source produced no chunks", "source", source)
		return 0, nil
	}

	docs := make([]Document, 0, len(chunks))
	for n, chunk := range chunks {
		embedding, err := in.embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("vectorindex: embed chunk %d of %q: %w", n, source, err)
		}
		md := make(map[string]any, len(metadata)+2)
		for k, v := range metadata {
			md[k] = v
		}
		md["source"] = source
		md["chunk"] = n
		docs = append(docs, Document{Content: chunk, Metadata: md, Embedding: embedding})
	}
	if err := in.collection.Add(ctx, docs); err != nil {
		return 0, err
	}
	slog.Info("ingested source", "source", source, "chunks", len(docs), "collection", in.collection.Name())
	return len(docs), nil
}

package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"
)

const (
	maxTextBytes    = 16 * 1024
	maxPreviewRows  = 8
	maxArchiveEntry = 4 * 1024
	maxArchiveShown = 5
	maxDecodedBytes = 16 * 1024
)

// Converter turns one raw artifact into a model-consumable block.
type Converter interface {
	Convert(ctx context.Context, a Artifact) (ContextBlock, error)
}

// Transcriber converts audio bytes to text. Implemented by internal/transcribe.
type Transcriber interface {
	Transcribe(ctx context.Context, name string, data []byte) (string, error)
}

// Normalizer dispatches artifacts to per-kind converters and wraps the
// results uniformly. A converter failure never aborts the batch: the artifact
// degrades to a block carrying an explicit "could not process" note so the
// reasoning backend can see and route around it.
type Normalizer struct {
	converters map[Kind]Converter
}

// NewNormalizer builds a normalizer with the built-in converters registered.
// tr may be nil; audio artifacts then degrade to a note block.
func NewNormalizer(tr Transcriber) *Normalizer {
	return &Normalizer{
		converters: map[Kind]Converter{
			KindText:    textConverter{},
			KindTabular: tabularConverter{},
			KindArchive: archiveConverter{},
			KindEncoded: encodedConverter{},
			KindAudio:   audioConverter{tr: tr},
		},
	}
}

// Register replaces the converter for a kind (used by tests and callers that
// bring their own collaborator).
func (n *Normalizer) Register(kind Kind, c Converter) {
	n.converters[kind] = c
}

// Normalize converts each artifact into exactly one block, preserving order.
func (n *Normalizer) Normalize(ctx context.Context, artifacts []Artifact) []ContextBlock {
	blocks := make([]ContextBlock, 0, len(artifacts))
	for _, a := range artifacts {
		blocks = append(blocks, n.normalizeOne(ctx, a))
	}
	return blocks
}

func (n *Normalizer) normalizeOne(ctx context.Context, a Artifact) ContextBlock {
	conv, ok := n.converters[a.Kind]
	if !ok {
		return failureBlock(a, fmt.Errorf("no converter for kind %q", a.Kind))
	}
	block, err := conv.Convert(ctx, a)
	if err != nil {
		log.Printf("[normalizer] convert %s (%s): %v", a.Name, a.Kind, err)
		return failureBlock(a, err)
	}
	block.Kind = a.Kind
	if block.Name == "" {
		block.Name = a.Name
	}
	return block
}

func failureBlock(a Artifact, err error) ContextBlock {
	return ContextBlock{
		Kind:    a.Kind,
		Name:    a.Name,
		Content: fmt.Sprintf("could not process: %v", err),
	}
}

type textConverter struct{}

func (textConverter) Convert(_ context.Context, a Artifact) (ContextBlock, error) {
	text := string(a.Data)
	if !utf8.ValidString(text) {
		return ContextBlock{}, fmt.Errorf("not valid utf-8 text")
	}
	return ContextBlock{Content: clip(text, maxTextBytes)}, nil
}

type tabularConverter struct{}

func (tabularConverter) Convert(_ context.Context, a Artifact) (ContextBlock, error) {
	r := csv.NewReader(bytes.NewReader(a.Data))
	r.FieldsPerRecord = -1
	if strings.HasSuffix(strings.ToLower(a.Name), ".tsv") {
		r.Comma = '\t'
	}

	var preview []string
	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ContextBlock{}, fmt.Errorf("parse csv: %w", err)
		}
		rows++
		if len(preview) < maxPreviewRows {
			preview = append(preview, strings.Join(record, ", "))
		}
	}
	if rows == 0 {
		return ContextBlock{}, fmt.Errorf("empty table")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "tabular data %q: %d rows\n", a.Name, rows)
	fmt.Fprintf(&sb, "first %d rows:\n", len(preview))
	sb.WriteString(strings.Join(preview, "\n"))
	fmt.Fprintf(&sb, "\n(full data is available to execute actions as input %q)", a.Name)
	return ContextBlock{Content: sb.String()}, nil
}

type archiveConverter struct{}

func (archiveConverter) Convert(_ context.Context, a Artifact) (ContextBlock, error) {
	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	if err != nil {
		return ContextBlock{}, fmt.Errorf("open zip: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "archive %q: %d entries\n", a.Name, len(zr.File))
	shown := 0
	for _, f := range zr.File {
		fmt.Fprintf(&sb, "- %s (%d bytes)\n", f.Name, f.UncompressedSize64)
		if shown >= maxArchiveShown || f.UncompressedSize64 > maxArchiveEntry {
			continue
		}
		if _, ok := KindForName(f.Name); !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntry))
		rc.Close()
		if err != nil || !utf8.Valid(data) {
			continue
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n", f.Name, strings.TrimSpace(string(data)))
		shown++
	}
	return ContextBlock{Content: strings.TrimSpace(sb.String())}, nil
}

type encodedConverter struct{}

func (encodedConverter) Convert(_ context.Context, a Artifact) (ContextBlock, error) {
	compact := strings.Join(strings.Fields(string(a.Data)), "")
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(compact)
	}
	if err != nil {
		return ContextBlock{}, fmt.Errorf("decode base64: %w", err)
	}
	if !utf8.Valid(decoded) {
		return ContextBlock{}, fmt.Errorf("decoded payload is not text")
	}
	return ContextBlock{Content: clip("decoded: "+string(decoded), maxDecodedBytes)}, nil
}

type audioConverter struct {
	tr Transcriber
}

func (c audioConverter) Convert(ctx context.Context, a Artifact) (ContextBlock, error) {
	if c.tr == nil {
		return ContextBlock{}, fmt.Errorf("no transcriber configured")
	}
	text, err := c.tr.Transcribe(ctx, a.Name, a.Data)
	if err != nil {
		return ContextBlock{}, fmt.Errorf("transcribe: %w", err)
	}
	return ContextBlock{Content: "audio transcript: " + strings.TrimSpace(text)}, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...(truncated)"
}

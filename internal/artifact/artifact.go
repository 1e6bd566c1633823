package artifact

import (
	"path"
	"strings"
)

// Kind classifies raw fetched material so the normalizer can pick a converter.
type Kind string

const (
	KindAudio   Kind = "audio"
	KindArchive Kind = "archive"
	KindTabular Kind = "tabular"
	KindEncoded Kind = "encoded"
	KindText    Kind = "text"
)

// Artifact is one piece of fetched material before normalization.
type Artifact struct {
	Kind Kind
	Name string
	URL  string
	Data []byte
}

// ContextBlock is the normalized, model-consumable form of one Artifact.
// Every block is self-describing: kind plus content, no out-of-band knowledge
// about its origin is needed downstream.
type ContextBlock struct {
	Kind    Kind   `json:"kind"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// KindForName guesses an artifact kind from a file name or URL path.
func KindForName(name string) (Kind, bool) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
		return KindAudio, true
	case ".zip":
		return KindArchive, true
	case ".csv", ".tsv":
		return KindTabular, true
	case ".b64", ".base64":
		return KindEncoded, true
	case ".txt", ".json", ".md", ".yaml", ".yml":
		return KindText, true
	}
	return "", false
}

// Package source turns files, uploads and raw text into documents the
// ingest pipeline can read.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lean-assistant/internal/app"
	"lean-assistant/internal/pkg/pdfextract"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extensions lists the formats a directory scan picks up.
var Extensions = []string{".pdf", ".txt", ".md"}

// File is a document on disk; the format is chosen by extension.
type File struct {
	Path string
}

func (f File) SourceName() string { return filepath.Base(f.Path) }

func (f File) ExtractText() (string, error) {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".pdf":
		return pdfextract.ExtractFile(f.Path)
	case ".txt", ".md":
		b, err := os.ReadFile(f.Path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(f.Path))
	}
}

// Text is an in-memory document, e.g. pasted through the API or read from the queue.
type Text struct {
	Name    string
	Content string
}

func (t Text) SourceName() string           { return t.Name }
func (t Text) ExtractText() (string, error) { return t.Content, nil }

// PDF is an uploaded PDF held in memory.
type PDF struct {
	Name string
	Data []byte
}

func (p PDF) SourceName() string { return p.Name }

func (p PDF) ExtractText() (string, error) {
	return pdfextract.ExtractText(bytes.NewReader(p.Data))
}

// ScanDirectory returns every supported file directly inside dir, sorted by name.
func ScanDirectory(dir string) ([]app.DocumentSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base dir failed: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]app.DocumentSource, len(names))
	for i, name := range names {
		docs[i] = File{Path: filepath.Join(dir, name)}
	}
	return docs, nil
}

func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

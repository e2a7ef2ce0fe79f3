// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package document implements the collaborator-facing document decoder
// contract: Decoder.Load produces Items, Decoder.Save reattaches
// translated text using the metadata Load handed out. The runner never
// inspects that metadata itself. SRT/ASS/EPUB decoders are a separate
// collaborator surface outside this module's scope; this package ships
// only the plain-text fallback decoder every extension resolves to when
// no richer decoder is registered. Grounded on
// murasaki_translator/documents/txt.py and the factory/base contract in
// murasaki_translator/documents/factory.py.
package document

import (
	"os"
	"strings"

	"github.com/kraklabs/translate/internal/model"
)

// Decoder loads a source document into translatable Items and writes
// translated TextBlocks back to a structurally equivalent file.
type Decoder interface {
	Load(path string) ([]model.Item, error)
	Save(path string, blocks []model.TextBlock) error
}

// TxtDecoder treats a file as newline-delimited plain text: one Item
// per line, Meta carrying the 0-based line index. Save does not read
// that metadata: it writes the blocks' texts in slice order, one per
// line.
type TxtDecoder struct{}

func (TxtDecoder) Load(path string) ([]model.Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	// A trailing newline produces one spurious empty final element;
	// drop it so round-tripping a file ending in "\n" doesn't grow a line.
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}
	items := make([]model.Item, len(lines))
	for i, line := range lines {
		items[i] = model.Item{
			Index: i,
			Text:  line,
			Meta:  map[string]any{"line": i},
		}
	}
	return items, nil
}

func (TxtDecoder) Save(path string, blocks []model.TextBlock) error {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	content := strings.Join(parts, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// ForExtension returns the decoder for a file path. TxtDecoder is the
// only decoder in this package, so it is returned for every path; the
// extension is not inspected.
func ForExtension(path string) Decoder {
	return TxtDecoder{}
}

// Package poem loads verse from text and Markdown files into scan requests.
package poem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/valpere/metermeter/internal"
	"github.com/valpere/metermeter/internal/chunker"
	"github.com/valpere/metermeter/internal/markdown"
)

// Poem is a named sequence of stanzas.
type Poem struct {
	Name    string
	Path    string
	Stanzas []chunker.Stanza
}

// Load reads a poem file. .md and .markdown files are reduced to their
// paragraph text first, which renumbers their lines.
func Load(path string) (*Poem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read poem: %w", err)
	}
	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		text = markdown.PoemText(data)
	}
	p := Parse(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), text)
	p.Path = path
	return p, nil
}

// Parse splits text into stanzas. Line numbers are 1-based positions in text.
func Parse(name, text string) *Poem {
	return &Poem{Name: name, Stanzas: chunker.Stanzas(text)}
}

// Lines returns every non-blank line with its line number.
func (p *Poem) Lines() []internal.ScanLine {
	var out []internal.ScanLine
	for _, s := range p.Stanzas {
		for i, l := range s.Lines {
			out = append(out, internal.ScanLine{LNum: s.FirstLine + i, Text: l})
		}
	}
	return out
}

// Text joins the poem's lines, for language detection and the like.
func (p *Poem) Text() string {
	var b strings.Builder
	for _, l := range p.Lines() {
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Request builds a scan request for the whole poem.
func (p *Poem) Request() internal.ScanRequest {
	source := p.Path
	if source == "" {
		source = p.Name
	}
	return internal.ScanRequest{Source: source, Lines: p.Lines()}
}

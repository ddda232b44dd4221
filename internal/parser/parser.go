// Package parser extracts the delimited header block and body from
// markdown note content.
//
// A note may begin with a header block bounded by literal `---` lines.
// Recognized fields decode into the typed Header record; fields absent
// from the header fall back to registry-stored values at the call site.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is the typed representation of a note's header block. All
// fields are optional; the zero value means "not declared".
type Header struct {
	Title        string   `yaml:"title,omitempty"`
	Category     string   `yaml:"category,omitempty"`
	SubCategory  string   `yaml:"sub category,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
	Status       string   `yaml:"status,omitempty"`
	Created      string   `yaml:"created,omitempty"`
	LastModified string   `yaml:"last_modified,omitempty"`
	NoteID       int64    `yaml:"note_id,omitempty"`
	Source       string   `yaml:"source,omitempty"`
	Author       string   `yaml:"author,omitempty"`
	Project      string   `yaml:"project,omitempty"`
	Summary      string   `yaml:"summary,omitempty"`
	WordCount    int      `yaml:"word_count,omitempty"`
}

// Result holds the output of parsing one markdown file.
type Result struct {
	Header    *Header
	Body      string
	Title     string
	WordCount int
}

// Parse splits data into header and body. Invalid header YAML falls
// back to treating the whole content as body, never an error: a
// malformed header must not block ingestion.
func Parse(data []byte) (*Result, error) {
	hdr, body := splitHeader(data)

	return &Result{
		Header:    hdr,
		Body:      body,
		Title:     deriveTitle(hdr, body),
		WordCount: CountWords(body),
	}, nil
}

// CountWords counts whitespace-separated fields in body. The word-delta
// throttle in the state machine compares these counts.
func CountWords(body string) int {
	return len(strings.Fields(body))
}

// splitHeader separates the YAML header (between leading --- delimiters)
// from the markdown body. If no header is found the entire content is body.
func splitHeader(data []byte) (*Header, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var hdr Header
	if err := yaml.Unmarshal(yamlBlock, &hdr); err != nil {
		return nil, string(data)
	}

	return &hdr, body
}

// deriveTitle returns the header title if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(hdr *Header, body string) string {
	if hdr != nil && hdr.Title != "" {
		return hdr.Title
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Render serializes hdr and body back into note content with the
// delimited header block on top.
func Render(hdr *Header, body string) ([]byte, error) {
	if hdr == nil {
		return []byte(body), nil
	}
	block, err := yaml.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal header: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(block)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.Bytes(), nil
}

package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/halver/muninn/internal/registry"
)

// Match types in fixed priority order.
const (
	MatchSourceHash  = "source_hash"
	MatchContentHash = "content_hash"
	MatchTitle       = "title"
)

// titleFuzzyThreshold is the minimum edit-distance ratio for a fuzzy
// title hit.
const titleFuzzyThreshold = 0.9

// datePrefixRe strips a leading 6-digit date prefix from titles
// ("250101_Report" → "Report").
var datePrefixRe = regexp.MustCompile(`^\d{6}[_ ]?`)

// Candidate is the projection of a note entering the import workflow.
type Candidate struct {
	Title       string
	ContentHash string
	SourceHash  string
}

// ArchiveLister supplies the archived notes to match against.
type ArchiveLister interface {
	ArchivedNotes() ([]registry.ArchivedNote, error)
}

// Detector is the admission-control check run before a new note enters
// processing. Internal failures fail open: a detector bug must never
// block ingestion.
type Detector struct {
	archives ArchiveLister
	logger   *slog.Logger
}

// NewDetector creates a duplicate detector over the given archive source.
func NewDetector(archives ArchiveLister, logger *slog.Logger) *Detector {
	return &Detector{archives: archives, logger: logger}
}

// Check evaluates all checks in priority order and collects every hit;
// any hit marks the candidate a duplicate.
func (d *Detector) Check(c Candidate) (isDuplicate bool, matches []registry.MatchRecord) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("duplicates: check failed open", slog.Any("panic", r))
			isDuplicate = false
			matches = nil
		}
	}()

	archived, err := d.archives.ArchivedNotes()
	if err != nil {
		d.logger.Warn("duplicates: archive listing failed open", slog.String("error", err.Error()))
		return false, nil
	}

	for _, a := range archived {
		if c.SourceHash != "" && a.SourceHash != "" && c.SourceHash == a.SourceHash {
			matches = append(matches, registry.MatchRecord{
				MatchedID: a.ID, Title: a.Title, MatchType: MatchSourceHash, Similarity: 1.0,
			})
		}
	}
	for _, a := range archived {
		if c.ContentHash != "" && c.ContentHash == a.ContentHash {
			matches = append(matches, registry.MatchRecord{
				MatchedID: a.ID, Title: a.Title, MatchType: MatchContentHash, Similarity: 1.0,
			})
		}
	}
	norm := NormalizeTitle(c.Title)
	if norm != "" {
		for _, a := range archived {
			ratio := titleRatio(norm, NormalizeTitle(a.Title))
			if ratio >= titleFuzzyThreshold {
				matches = append(matches, registry.MatchRecord{
					MatchedID: a.ID, Title: a.Title, MatchType: MatchTitle, Similarity: ratio,
				})
			}
		}
	}

	return len(matches) > 0, matches
}

// NormalizeTitle strips a leading 6-digit date prefix, converts
// underscores to spaces, and lowercases.
func NormalizeTitle(title string) string {
	t := datePrefixRe.ReplaceAllString(title, "")
	t = strings.ReplaceAll(t, "_", " ")
	return strings.ToLower(strings.TrimSpace(t))
}

// titleRatio is an edit-distance similarity in [0,1]: identical strings
// score 1.0.
func titleRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if n := len([]rune(b)); n > maxLen {
		maxLen = n
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// String implements fmt.Stringer for log output.
func (c Candidate) String() string {
	return fmt.Sprintf("title=%q content=%.8s source=%.8s", c.Title, c.ContentHash, c.SourceHash)
}

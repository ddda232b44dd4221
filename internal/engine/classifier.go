package engine

import (
	"sort"
	"strings"

	"github.com/halver/muninn/internal/models"
)

// Workflow identifiers resolved by the classifier.
const (
	WorkflowImport       = "import"
	WorkflowStorage      = "storage"
	WorkflowQuarantine   = "quarantine"
	WorkflowTechnical    = "technical"
	WorkflowUnclassified = "unclassified"
)

// Rule binds a vault-relative root to a workflow identifier.
type Rule struct {
	Root     string
	Workflow string
}

// Classifier resolves paths to workflows by longest-prefix containment
// over an ordered table built once at startup.
type Classifier struct {
	rules []Rule // sorted by descending root length
}

// NewClassifier builds the ordered table from rules.
func NewClassifier(rules []Rule) *Classifier {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Root) > len(sorted[j].Root)
	})
	return &Classifier{rules: sorted}
}

// Classify returns the workflow for the longest configured root
// containing path, or WorkflowUnclassified.
func (c *Classifier) Classify(path string) string {
	for _, r := range c.rules {
		if path == r.Root || strings.HasPrefix(path, r.Root+"/") {
			return r.Workflow
		}
	}
	return WorkflowUnclassified
}

// Reclassified reports whether a moved event crosses workflow roots:
// the destination must then be re-derived from its new folder rather
// than treated as a plain rename.
func (c *Classifier) Reclassified(ev models.Event) bool {
	if ev.Action != models.ActionMoved || ev.SrcPath == "" {
		return false
	}
	return c.Classify(ev.SrcPath) != c.Classify(ev.Path)
}

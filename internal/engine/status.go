package engine

import "github.com/halver/muninn/internal/models"

// Transition is the state-machine verdict for one event.
type Transition int

const (
	// TransitionNone leaves status and content untouched. This is the
	// throttle that keeps trivial edits from re-invoking the downstream
	// workflow.
	TransitionNone Transition = iota
	// TransitionImport admits a draft into the import pipeline.
	TransitionImport
	// TransitionRegen regenerates the synthesis from an edited archive.
	TransitionRegen
	// TransitionRegenHeader regenerates the header of an edited synthesis.
	TransitionRegenHeader
)

func (t Transition) String() string {
	switch t {
	case TransitionImport:
		return "import"
	case TransitionRegen:
		return "regen"
	case TransitionRegenHeader:
		return "regen_header"
	default:
		return "none"
	}
}

// DefaultWordDelta is the word-count delta above which an edit triggers
// regeneration.
const DefaultWordDelta = 100

// StateMachine evaluates lifecycle transitions keyed on status and
// edit-size heuristics.
type StateMachine struct {
	WordDelta int
}

// NewStateMachine creates a state machine; delta <= 0 uses the default.
func NewStateMachine(delta int) *StateMachine {
	if delta <= 0 {
		delta = DefaultWordDelta
	}
	return &StateMachine{WordDelta: delta}
}

// Evaluate decides the transition for a modify-or-create event on note.
// headerStatus is the status value declared in the note's own header
// block ("" when absent): an explicit regen/regen_header there forces
// the regeneration path without waiting for a size delta.
func (sm *StateMachine) Evaluate(note *models.Note, newWordCount int, headerStatus models.Status) Transition {
	if note.Status.Terminal() {
		return TransitionNone
	}

	switch headerStatus {
	case models.StatusRegen:
		return TransitionRegen
	case models.StatusRegenHeader:
		return TransitionRegenHeader
	}

	switch note.Status {
	case models.StatusDraft:
		return TransitionImport
	case models.StatusArchive:
		if sm.exceedsDelta(note.WordCount, newWordCount) {
			return TransitionRegen
		}
	case models.StatusSynthesis:
		if sm.exceedsDelta(note.WordCount, newWordCount) {
			return TransitionRegenHeader
		}
	case models.StatusRegen:
		// Interrupted regeneration: resume.
		return TransitionRegen
	case models.StatusRegenHeader:
		return TransitionRegenHeader
	}
	return TransitionNone
}

func (sm *StateMachine) exceedsDelta(stored, current int) bool {
	delta := current - stored
	if delta < 0 {
		delta = -delta
	}
	return delta > sm.WordDelta
}

package engine

import (
	"testing"

	"github.com/halver/muninn/internal/models"
)

func note(status models.Status, wordCount int) *models.Note {
	return &models.Note{ID: 1, Status: status, WordCount: wordCount}
}

func TestEvaluate_DraftEntersImport(t *testing.T) {
	sm := NewStateMachine(100)
	if got := sm.Evaluate(note(models.StatusDraft, 0), 500, ""); got != TransitionImport {
		t.Errorf("draft = %v, want import", got)
	}
}

func TestEvaluate_DeltaThrottle(t *testing.T) {
	sm := NewStateMachine(100)

	// Below or at the threshold: no-op for both pair members.
	if got := sm.Evaluate(note(models.StatusArchive, 500), 600, ""); got != TransitionNone {
		t.Errorf("delta == threshold should be a no-op, got %v", got)
	}
	if got := sm.Evaluate(note(models.StatusSynthesis, 500), 450, ""); got != TransitionNone {
		t.Errorf("small edit should be a no-op, got %v", got)
	}

	// Exceeding it: archive edits regen, synthesis edits regen_header.
	if got := sm.Evaluate(note(models.StatusArchive, 500), 601, ""); got != TransitionRegen {
		t.Errorf("archive over threshold = %v, want regen", got)
	}
	if got := sm.Evaluate(note(models.StatusSynthesis, 500), 399, ""); got != TransitionRegenHeader {
		t.Errorf("synthesis over threshold = %v, want regen_header", got)
	}
}

func TestEvaluate_ShrinkingEditCountsToo(t *testing.T) {
	sm := NewStateMachine(100)
	if got := sm.Evaluate(note(models.StatusArchive, 500), 100, ""); got != TransitionRegen {
		t.Errorf("large deletion = %v, want regen", got)
	}
}

func TestEvaluate_HeaderForcedRegen(t *testing.T) {
	sm := NewStateMachine(100)

	// An explicit status in the note's own header forces regeneration
	// regardless of edit size.
	if got := sm.Evaluate(note(models.StatusArchive, 500), 500, models.StatusRegen); got != TransitionRegen {
		t.Errorf("forced regen = %v", got)
	}
	if got := sm.Evaluate(note(models.StatusSynthesis, 500), 500, models.StatusRegenHeader); got != TransitionRegenHeader {
		t.Errorf("forced regen_header = %v", got)
	}
}

func TestEvaluate_DuplicateIsTerminal(t *testing.T) {
	sm := NewStateMachine(100)
	if got := sm.Evaluate(note(models.StatusDuplicate, 0), 10000, models.StatusRegen); got != TransitionNone {
		t.Errorf("duplicate must stay terminal, got %v", got)
	}
}

func TestEvaluate_InterruptedRegenResumes(t *testing.T) {
	sm := NewStateMachine(100)
	if got := sm.Evaluate(note(models.StatusRegen, 500), 500, ""); got != TransitionRegen {
		t.Errorf("stuck regen = %v, want regen", got)
	}
	if got := sm.Evaluate(note(models.StatusRegenHeader, 500), 500, ""); got != TransitionRegenHeader {
		t.Errorf("stuck regen_header = %v, want regen_header", got)
	}
}

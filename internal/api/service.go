package api

import (
	"sort"
	"time"

	"github.com/halver/muninn/internal/engine"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

// Service coordinates registry and storage reads for the API layer.
// The API is an observation surface: all writes to the vault go through
// the filesystem and the event pipeline, never through HTTP.
type Service struct {
	store storage.Provider
	reg   *registry.DB
	locks *engine.LockManager
}

// NewService creates a new API service.
func NewService(store storage.Provider, reg *registry.DB, locks *engine.LockManager) *Service {
	return &Service{store: store, reg: reg, locks: locks}
}

// ListNotes returns paginated notes with an optional status filter.
func (s *Service) ListNotes(status string, limit, offset int) ([]NoteListItem, int, error) {
	rows, total, err := s.reg.ListNotes(status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, n := range rows {
		items[i] = NoteListItem{
			ID:         n.ID,
			Path:       n.FilePath,
			Title:      n.Title,
			Status:     string(n.Status),
			WordCount:  n.WordCount,
			ModifiedAt: n.ModifiedAt,
		}
	}
	return items, total, nil
}

// GetNote returns the full note record plus its current file content
// and, for pair members, the partner's path.
func (s *Service) GetNote(path string) (*NoteDetail, error) {
	note, err := s.reg.GetNoteByPath(path)
	if err != nil {
		return nil, err
	}

	content := ""
	if data, readErr := s.store.Read(path); readErr == nil {
		content = string(data)
	}

	pairPath := ""
	if note.ParentID != nil {
		if partner, pairErr := s.reg.PairOf(note.ID); pairErr == nil && partner != nil {
			pairPath = partner.FilePath
		}
	}

	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	return &NoteDetail{
		ID:          note.ID,
		Path:        note.FilePath,
		Title:       note.Title,
		Status:      string(note.Status),
		Content:     content,
		ContentHash: note.ContentHash,
		SourceHash:  note.SourceHash,
		Tags:        tags,
		WordCount:   note.WordCount,
		PairPath:    pairPath,
		CreatedAt:   note.CreatedAt,
		ModifiedAt:  note.ModifiedAt,
	}, nil
}

// Search returns notes whose title or path matches the query.
func (s *Service) Search(query string, limit int) ([]NoteListItem, error) {
	rows, err := s.reg.SearchNotes(query, limit)
	if err != nil {
		return nil, err
	}
	items := make([]NoteListItem, len(rows))
	for i, n := range rows {
		items[i] = NoteListItem{
			ID:         n.ID,
			Path:       n.FilePath,
			Title:      n.Title,
			Status:     string(n.Status),
			WordCount:  n.WordCount,
			ModifiedAt: n.ModifiedAt,
		}
	}
	return items, nil
}

// Duplicates returns all recorded duplicate matches.
func (s *Service) Duplicates() ([]registry.DuplicateEntry, error) {
	return s.reg.ListDuplicates()
}

// Locks returns the currently held advisory locks, oldest first.
func (s *Service) Locks() []LockInfo {
	held := s.locks.Snapshot()
	out := make([]LockInfo, 0, len(held))
	for key, acquired := range held {
		out = append(out, LockInfo{Key: key, AcquiredAt: acquired})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].AcquiredAt.Before(out[j].AcquiredAt)
	})
	return out
}

// LockInfo is one held advisory lock.
type LockInfo struct {
	Key        string    `json:"key"`
	AcquiredAt time.Time `json:"acquired_at"`
}

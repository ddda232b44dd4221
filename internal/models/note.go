// Package models defines the domain types for Muninn.
package models

import "time"

// Status is the lifecycle state of a tracked note.
type Status string

// Note lifecycle states. Duplicate is terminal; every other state is
// re-enterable.
const (
	StatusDraft       Status = "draft"
	StatusProcessing  Status = "processing"
	StatusArchive     Status = "archive"
	StatusSynthesis   Status = "synthesis"
	StatusDuplicate   Status = "duplicate"
	StatusRegen       Status = "regen"
	StatusRegenHeader Status = "regen_header"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusProcessing, StatusArchive, StatusSynthesis,
		StatusDuplicate, StatusRegen, StatusRegenHeader:
		return true
	}
	return false
}

// Terminal reports whether no further automatic processing applies.
func (s Status) Terminal() bool { return s == StatusDuplicate }

// Note is a single tracked markdown file with a registry identity.
// Rows are owned by the registry and mutated only through its operations.
type Note struct {
	ID            int64     `json:"id"`
	FilePath      string    `json:"file_path"`
	Title         string    `json:"title"`
	Status        Status    `json:"status"`
	ParentID      *int64    `json:"parent_id,omitempty"`
	FolderID      *int64    `json:"folder_id,omitempty"`
	CategoryID    *int64    `json:"category_id,omitempty"`
	SubcategoryID *int64    `json:"subcategory_id,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ModifiedAt    time.Time `json:"modified_at"`
	WordCount     int       `json:"word_count"`
	ContentHash   string    `json:"content_hash,omitempty"`
	SourceHash    string    `json:"source_hash,omitempty"`
	Language      string    `json:"language,omitempty"`
}

// FolderType classifies a folder row.
type FolderType string

const (
	FolderStorage   FolderType = "storage"
	FolderArchive   FolderType = "archive"
	FolderImport    FolderType = "import"
	FolderTechnical FolderType = "technical"
	FolderProject   FolderType = "project"
	FolderPersonal  FolderType = "personal"
)

// Folder is a directory tracked by the registry. Its category and
// subcategory are the source of truth for any note inside it.
type Folder struct {
	ID            int64      `json:"id"`
	Path          string     `json:"path"`
	FolderType    FolderType `json:"folder_type"`
	ParentID      *int64     `json:"parent_id,omitempty"`
	CategoryID    *int64     `json:"category_id,omitempty"`
	SubcategoryID *int64     `json:"subcategory_id,omitempty"`
}

// Category is one node of the one-level category tree. A nil ParentID
// marks a top-level category, non-nil a subcategory.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Description string `json:"description,omitempty"`
	PromptName  string `json:"prompt_name,omitempty"`
}

// EventType distinguishes file and directory events.
type EventType string

const (
	EventFile      EventType = "file"
	EventDirectory EventType = "directory"
)

// Action is the observed filesystem change kind.
type Action string

const (
	ActionCreated  Action = "created"
	ActionModified Action = "modified"
	ActionDeleted  Action = "deleted"
	ActionMoved    Action = "moved"
)

// Event is a normalized filesystem change notification. Events are
// transient and never stored. SrcPath is set only for moved events.
type Event struct {
	Type    EventType `json:"type"`
	Action  Action    `json:"action"`
	Path    string    `json:"path"`
	SrcPath string    `json:"src_path,omitempty"`
}

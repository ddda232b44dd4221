package api

import "time"

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	WordCount  int       `json:"word_count"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NoteDetail is the response payload for a single note.
type NoteDetail struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	SourceHash  string    `json:"source_hash,omitempty"`
	Tags        []string  `json:"tags"`
	WordCount   int       `json:"word_count"`
	PairPath    string    `json:"pair_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes"`
	Total int            `json:"total"`
}

package store

import "lecture-notes-api/internal/notes"

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Lecture is one uploaded audio asset and the state of its processing run.
// FilePath is the staged-asset handle and never leaves the server.
type Lecture struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Title      string  `json:"title"`
	Filename   string  `json:"filename"`
	UploadDate string  `json:"upload_date"`
	FileSize   int64   `json:"file_size"`
	FilePath   string  `json:"-"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// Note is the synthesized output for one completed lecture: a transcript
// snapshot plus the structured notes. Exactly one exists per completed
// lecture, none for failed ones.
type Note struct {
	ID              int64                 `json:"id"`
	LectureID       string                `json:"lecture_id"`
	UserID          string                `json:"user_id"`
	FullText        string                `json:"full_text"`
	Confidence      float64               `json:"confidence"`
	WordCount       int                   `json:"word_count"`
	Truncated       bool                  `json:"truncated"`
	StructuredNotes notes.StructuredNotes `json:"structured_notes"`
	CreatedAt       string                `json:"created_at"`
	LastEdited      string                `json:"last_edited"`
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uniplaces/carbon"

	"lecture-notes-api/internal/notes"
)

var ErrNotFound = errors.New("record not found")

// Store is the concrete persistence gateway backed by MySQL. Single-row
// reads and writes are atomic; nothing here spans a transaction across the
// lectures and notes tables.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetDB returns the underlying sql.DB instance
func (store *Store) GetDB() *sql.DB {
	return store.db
}

// EnsureSchema creates the lectures and notes tables if they do not exist.
func (store *Store) EnsureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lectures (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			title VARCHAR(512) NOT NULL,
			filename VARCHAR(512) NOT NULL,
			upload_date DATETIME NOT NULL,
			file_size BIGINT NOT NULL,
			file_path VARCHAR(1024) NOT NULL,
			status VARCHAR(16) NOT NULL,
			error TEXT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			INDEX idx_lectures_user (user_id, upload_date)
		)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			lecture_id VARCHAR(36) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			full_text MEDIUMTEXT NOT NULL,
			confidence DOUBLE NOT NULL,
			word_count INT NOT NULL,
			truncated TINYINT(1) NOT NULL DEFAULT 0,
			structured_notes MEDIUMTEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_edited DATETIME NOT NULL,
			INDEX idx_notes_lecture (lecture_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := store.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (store *Store) InsertLecture(l Lecture) error {
	if l.ID == "" || l.UserID == "" {
		return errors.New("missing required fields")
	}

	now := carbon.Now().DateTimeString()
	_, err := store.db.Exec(
		"INSERT INTO lectures (id, user_id, title, filename, upload_date, file_size, file_path, status, error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		l.ID, l.UserID, l.Title, l.Filename, l.UploadDate, l.FileSize, l.FilePath, l.Status, l.Error, now, now)
	return err
}

// UpdateLectureStatus moves a lecture to a new status, replacing the stored
// error message (cleared when errMsg is empty).
func (store *Store) UpdateLectureStatus(id, status, errMsg string) error {
	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}
	res, err := store.db.Exec(
		"UPDATE lectures SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		status, errVal, carbon.Now().DateTimeString(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (store *Store) FindLecture(id string) (Lecture, error) {
	var l Lecture
	err := store.db.QueryRow(
		"SELECT id, user_id, title, filename, upload_date, file_size, file_path, status, error, created_at, updated_at FROM lectures WHERE id = ?",
		id).Scan(&l.ID, &l.UserID, &l.Title, &l.Filename, &l.UploadDate, &l.FileSize, &l.FilePath, &l.Status, &l.Error, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Lecture{}, ErrNotFound
	}
	if err != nil {
		return Lecture{}, err
	}
	return l, nil
}

func (store *Store) ListLecturesByUser(userID string) ([]Lecture, error) {
	rows, err := store.db.Query(
		"SELECT id, user_id, title, filename, upload_date, file_size, file_path, status, error, created_at, updated_at FROM lectures WHERE user_id = ? ORDER BY upload_date DESC LIMIT 100",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lectures := []Lecture{}
	for rows.Next() {
		var l Lecture
		err = rows.Scan(&l.ID, &l.UserID, &l.Title, &l.Filename, &l.UploadDate, &l.FileSize, &l.FilePath, &l.Status, &l.Error, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, err
		}
		lectures = append(lectures, l)
	}
	return lectures, rows.Err()
}

func (store *Store) DeleteLecture(id string) error {
	res, err := store.db.Exec("DELETE FROM lectures WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (store *Store) InsertNote(n Note) error {
	if n.LectureID == "" || n.UserID == "" {
		return errors.New("missing required fields")
	}

	structured, err := json.Marshal(n.StructuredNotes)
	if err != nil {
		return fmt.Errorf("encode structured notes: %w", err)
	}

	now := carbon.Now().DateTimeString()
	_, err = store.db.Exec(
		"INSERT INTO notes (lecture_id, user_id, full_text, confidence, word_count, truncated, structured_notes, created_at, last_edited) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		n.LectureID, n.UserID, n.FullText, n.Confidence, n.WordCount, n.Truncated, string(structured), now, now)
	return err
}

func (store *Store) FindNoteByLectureID(lectureID string) (Note, error) {
	var n Note
	var structured string
	err := store.db.QueryRow(
		"SELECT id, lecture_id, user_id, full_text, confidence, word_count, truncated, structured_notes, created_at, last_edited FROM notes WHERE lecture_id = ?",
		lectureID).Scan(&n.ID, &n.LectureID, &n.UserID, &n.FullText, &n.Confidence, &n.WordCount, &n.Truncated, &structured, &n.CreatedAt, &n.LastEdited)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, err
	}

	if err := json.Unmarshal([]byte(structured), &n.StructuredNotes); err != nil {
		return Note{}, fmt.Errorf("decode structured notes: %w", err)
	}
	if n.StructuredNotes.Sections == nil {
		n.StructuredNotes.Sections = []notes.Section{}
	}
	return n, nil
}

func (store *Store) DeleteNotesByLectureID(lectureID string) error {
	_, err := store.db.Exec("DELETE FROM notes WHERE lecture_id = ?", lectureID)
	return err
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"lecture-notes-api/config"
	"lecture-notes-api/internal/notes"
	"lecture-notes-api/internal/stager"
	"lecture-notes-api/internal/store"
)

type fakeWebStore struct {
	lectures      map[string]store.Lecture
	notesByID     map[string]store.Note
	inserted      []store.Lecture
	statusUpdates map[string]string
}

func newFakeWebStore() *fakeWebStore {
	return &fakeWebStore{
		lectures:      map[string]store.Lecture{},
		notesByID:     map[string]store.Note{},
		statusUpdates: map[string]string{},
	}
}

func (f *fakeWebStore) InsertLecture(l store.Lecture) error {
	f.inserted = append(f.inserted, l)
	f.lectures[l.ID] = l
	return nil
}

func (f *fakeWebStore) UpdateLectureStatus(id, status, errMsg string) error {
	l, ok := f.lectures[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Status = status
	f.lectures[id] = l
	f.statusUpdates[id] = status
	return nil
}

func (f *fakeWebStore) FindLecture(id string) (store.Lecture, error) {
	l, ok := f.lectures[id]
	if !ok {
		return store.Lecture{}, store.ErrNotFound
	}
	return l, nil
}

func (f *fakeWebStore) ListLecturesByUser(userID string) ([]store.Lecture, error) {
	out := []store.Lecture{}
	for _, l := range f.lectures {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeWebStore) DeleteLecture(id string) error {
	if _, ok := f.lectures[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.lectures, id)
	return nil
}

func (f *fakeWebStore) FindNoteByLectureID(lectureID string) (store.Note, error) {
	n, ok := f.notesByID[lectureID]
	if !ok {
		return store.Note{}, store.ErrNotFound
	}
	return n, nil
}

func (f *fakeWebStore) DeleteNotesByLectureID(lectureID string) error {
	delete(f.notesByID, lectureID)
	return nil
}

type fakeRunner struct {
	note store.Note
	err  error
	runs []store.Lecture
}

func (f *fakeRunner) Run(_ context.Context, lecture store.Lecture) (store.Note, error) {
	f.runs = append(f.runs, lecture)
	return f.note, f.err
}

func setupTestServer(t *testing.T, s Store, runner Runner) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	assets, err := stager.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("stager: %v", err)
	}

	cfg := config.AppConfig{MaxUploadBytes: 1024 * 1024}
	engine := gin.New()
	engine.Use(gin.Recovery())
	RegisterRoutes(engine, NewAPI(cfg, s, assets, runner))
	return engine
}

func audioUploadRequest(t *testing.T, contentType string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="lecture.mp3"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte("fake-audio-bytes"))
	w.WriteField("title", "Intro to Testing")
	w.WriteField("user_id", "user-9")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/lectures/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealthHandler(t *testing.T) {
	engine := setupTestServer(t, newFakeWebStore(), &fakeRunner{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestUploadRejectsNonAudio(t *testing.T) {
	s := newFakeWebStore()
	runner := &fakeRunner{}
	engine := setupTestServer(t, s, runner)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, audioUploadRequest(t, "text/plain"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(s.inserted) != 0 || len(runner.runs) != 0 {
		t.Fatal("rejected uploads must not reach the store or pipeline")
	}
}

func TestUploadMissingFile(t *testing.T) {
	engine := setupTestServer(t, newFakeWebStore(), &fakeRunner{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/lectures/upload", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadHappyPath(t *testing.T) {
	s := newFakeWebStore()
	runner := &fakeRunner{note: store.Note{
		LectureID: "ignored",
		StructuredNotes: notes.StructuredNotes{
			Title:   "Testing in Go",
			Summary: "Tables and fakes.",
		},
	}}
	engine := setupTestServer(t, s, runner)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, audioUploadRequest(t, "audio/mpeg"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(s.inserted) != 1 {
		t.Fatalf("expected one inserted lecture, got %d", len(s.inserted))
	}
	lecture := s.inserted[0]
	if lecture.Status != store.StatusProcessing {
		t.Fatalf("lecture must be inserted as processing, got %q", lecture.Status)
	}
	if lecture.UserID != "user-9" || lecture.Title != "Intro to Testing" {
		t.Fatalf("unexpected lecture %+v", lecture)
	}
	if len(runner.runs) != 1 {
		t.Fatalf("expected one pipeline run, got %d", len(runner.runs))
	}

	var body struct {
		LectureID string `json:"lecture_id"`
		Status    string `json:"status"`
		Preview   struct {
			Title   string `json:"title"`
			Summary string `json:"summary"`
		} `json:"preview"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != store.StatusCompleted || body.Preview.Title != "Testing in Go" {
		t.Fatalf("unexpected response %+v", body)
	}
}

func TestUploadPipelineFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("transcription failed: bad audio")}
	engine := setupTestServer(t, newFakeWebStore(), runner)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, audioUploadRequest(t, "audio/wav"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bad audio") {
		t.Fatalf("expected error detail in response, got %s", rec.Body.String())
	}
}

func TestGetNotesNotFound(t *testing.T) {
	engine := setupTestServer(t, newFakeWebStore(), &fakeRunner{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetNotesRepairsInconsistentLecture(t *testing.T) {
	s := newFakeWebStore()
	s.lectures["lec-1"] = store.Lecture{ID: "lec-1", UserID: "u", Status: store.StatusCompleted}
	engine := setupTestServer(t, s, &fakeRunner{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes/lec-1", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if s.statusUpdates["lec-1"] != store.StatusFailed {
		t.Fatal("completed lecture without a note record should be repaired to failed")
	}
}

func TestGetNotesSuccess(t *testing.T) {
	s := newFakeWebStore()
	s.notesByID["lec-1"] = store.Note{
		LectureID: "lec-1",
		UserID:    "u",
		FullText:  "transcript",
		Truncated: true,
		StructuredNotes: notes.StructuredNotes{
			Title:    "T",
			Sections: []notes.Section{{Heading: "H"}},
		},
	}
	engine := setupTestServer(t, s, &fakeRunner{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes/lec-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var note store.Note
	if err := json.Unmarshal(rec.Body.Bytes(), &note); err != nil {
		t.Fatalf("decode note: %v", err)
	}
	if note.StructuredNotes.Title != "T" || !note.Truncated {
		t.Fatalf("unexpected note %+v", note)
	}
}

func TestListLecturesHidesFilePath(t *testing.T) {
	s := newFakeWebStore()
	s.lectures["lec-1"] = store.Lecture{
		ID:       "lec-1",
		UserID:   "user-9",
		FilePath: "/var/uploads/secret.mp3",
		Status:   store.StatusCompleted,
	}
	engine := setupTestServer(t, s, &fakeRunner{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lectures/user/user-9", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret.mp3") {
		t.Fatal("file path must not be exposed in list responses")
	}
	var lectures []store.Lecture
	if err := json.Unmarshal(rec.Body.Bytes(), &lectures); err != nil {
		t.Fatalf("decode lectures: %v", err)
	}
	if len(lectures) != 1 || lectures[0].ID != "lec-1" {
		t.Fatalf("unexpected lectures %+v", lectures)
	}
}

func TestDeleteLecture(t *testing.T) {
	s := newFakeWebStore()
	s.lectures["lec-1"] = store.Lecture{ID: "lec-1", UserID: "u"}
	s.notesByID["lec-1"] = store.Note{LectureID: "lec-1"}
	engine := setupTestServer(t, s, &fakeRunner{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/lectures/lec-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := s.lectures["lec-1"]; ok {
		t.Fatal("lecture should be deleted")
	}
	if _, ok := s.notesByID["lec-1"]; ok {
		t.Fatal("notes should be deleted with the lecture")
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/lectures/lec-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a second delete, got %d", rec.Code)
	}
}

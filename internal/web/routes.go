package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uniplaces/carbon"

	"lecture-notes-api/config"
	"lecture-notes-api/internal/logging"
	"lecture-notes-api/internal/stager"
	"lecture-notes-api/internal/store"
)

var allowedAudioTypes = map[string]struct{}{
	"audio/mpeg":  {},
	"audio/wav":   {},
	"audio/mp4":   {},
	"audio/x-m4a": {},
	"audio/webm":  {},
}

type Store interface {
	InsertLecture(l store.Lecture) error
	UpdateLectureStatus(id, status, errMsg string) error
	FindLecture(id string) (store.Lecture, error)
	ListLecturesByUser(userID string) ([]store.Lecture, error)
	DeleteLecture(id string) error
	FindNoteByLectureID(lectureID string) (store.Note, error)
	DeleteNotesByLectureID(lectureID string) error
}

type Runner interface {
	Run(ctx context.Context, lecture store.Lecture) (store.Note, error)
}

type API struct {
	cfg    config.AppConfig
	store  Store
	assets stager.Stager
	runner Runner
	log    *logging.Logger
}

func NewAPI(cfg config.AppConfig, s Store, assets stager.Stager, runner Runner) *API {
	return &API{cfg: cfg, store: s, assets: assets, runner: runner, log: logging.New()}
}

func RegisterRoutes(r *gin.Engine, api *API) {
	r.GET("/", api.handleRoot)
	r.GET("/health", api.handleHealth)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/lectures/upload", api.handleUploadLecture)
		apiGroup.GET("/notes/:lectureId", api.handleGetNotes)
		apiGroup.GET("/lectures/user/:userId", api.handleListLectures)
		apiGroup.DELETE("/lectures/:id", api.handleDeleteLecture)
	}
}

func (a *API) handleRoot(c *gin.Context) {
	host, _ := os.Hostname()
	c.JSON(http.StatusOK, gin.H{
		"message":  "Lecture Voice-to-Notes API",
		"status":   "running",
		"hostname": host,
	})
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": carbon.Now().DateTimeString(),
	})
}

// handleUploadLecture stages the uploaded audio, inserts the lecture record
// with status processing and runs the pipeline to a terminal state before
// responding. The pipeline gets a fresh context: once started, a run is not
// aborted by the client going away.
func (a *API) handleUploadLecture(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing audio file"})
		return
	}
	defer file.Close()

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if _, ok := allowedAudioTypes[contentType]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file type: " + contentType})
		return
	}
	if a.cfg.MaxUploadBytes > 0 && header.Size > a.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = header.Filename
	}
	userID := c.DefaultPostForm("user_id", "default_user")

	handle, size, err := a.assets.Stage(c.Request.Context(), file, header.Filename)
	if err != nil {
		a.log.WithRequest(c.Request).WithError(err).Error("failed to stage upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return
	}

	lecture := store.Lecture{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		Filename:   header.Filename,
		UploadDate: carbon.Now().DateTimeString(),
		FileSize:   size,
		FilePath:   handle,
		Status:     store.StatusProcessing,
	}
	if err := a.store.InsertLecture(lecture); err != nil {
		a.log.WithRequest(c.Request).WithError(err).Error("failed to insert lecture")
		if rerr := a.assets.Remove(context.Background(), handle); rerr != nil {
			a.log.WithError(rerr).Warn("failed to remove staged asset")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create lecture"})
		return
	}

	note, err := a.runner.Run(context.Background(), lecture)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "lecture_id": lecture.ID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lecture_id": lecture.ID,
		"status":     store.StatusCompleted,
		"message":    "Notes generated successfully",
		"preview": gin.H{
			"title":   note.StructuredNotes.Title,
			"summary": note.StructuredNotes.Summary,
		},
	})
}

// handleGetNotes returns the note record for a lecture. A completed lecture
// with no note record is an inconsistent pair (crash between the two
// finalization writes); it is repaired to failed when observed.
func (a *API) handleGetNotes(c *gin.Context) {
	lectureID := c.Param("lectureId")

	note, err := a.store.FindNoteByLectureID(lectureID)
	if errors.Is(err, store.ErrNotFound) {
		a.reconcileMissingNote(c, lectureID)
		c.JSON(http.StatusNotFound, gin.H{"error": "Notes not found"})
		return
	}
	if err != nil {
		a.log.WithRequest(c.Request).WithError(err).Error("failed to load notes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load notes"})
		return
	}

	c.JSON(http.StatusOK, note)
}

func (a *API) reconcileMissingNote(c *gin.Context, lectureID string) {
	lecture, err := a.store.FindLecture(lectureID)
	if err != nil || lecture.Status != store.StatusCompleted {
		return
	}
	a.log.WithRequest(c.Request).WithField("lecture_id", lectureID).
		Warn("completed lecture has no note record, repairing status")
	if err := a.store.UpdateLectureStatus(lectureID, store.StatusFailed, "note record missing"); err != nil {
		a.log.WithError(err).Error("failed to repair inconsistent lecture status")
	}
}

func (a *API) handleListLectures(c *gin.Context) {
	lectures, err := a.store.ListLecturesByUser(c.Param("userId"))
	if err != nil {
		a.log.WithRequest(c.Request).WithError(err).Error("failed to list lectures")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list lectures"})
		return
	}
	c.JSON(http.StatusOK, lectures)
}

func (a *API) handleDeleteLecture(c *gin.Context) {
	lectureID := c.Param("id")

	if err := a.store.DeleteNotesByLectureID(lectureID); err != nil {
		a.log.WithRequest(c.Request).WithError(err).Error("failed to delete notes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete notes"})
		return
	}

	err := a.store.DeleteLecture(lectureID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lecture not found"})
		return
	}
	if err != nil {
		a.log.WithRequest(c.Request).WithError(err).Error("failed to delete lecture")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete lecture"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Lecture deleted successfully"})
}

package pipeline

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"lecture-notes-api/internal/logging"
	"lecture-notes-api/internal/notes"
	"lecture-notes-api/internal/stager"
	"lecture-notes-api/internal/store"
	"lecture-notes-api/internal/transcription"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (*transcription.TranscriptResult, error)
}

type Synthesizer interface {
	GenerateNotes(ctx context.Context, transcript string) (notes.Result, error)
}

type Store interface {
	UpdateLectureStatus(id, status, errMsg string) error
	InsertNote(n store.Note) error
}

// Coordinator sequences one lecture's processing run: staged asset →
// transcription → note synthesis → persistence, driving the lecture record
// to a terminal status and removing the staged asset on every exit path.
// Independent lectures run concurrently up to the semaphore limit.
type Coordinator struct {
	store  Store
	stt    Transcriber
	synth  Synthesizer
	assets stager.Stager
	sem    *semaphore.Weighted
	log    *logrus.Entry
}

func NewCoordinator(s Store, stt Transcriber, synth Synthesizer, assets stager.Stager, maxConcurrentRuns int64) *Coordinator {
	if maxConcurrentRuns < 1 {
		maxConcurrentRuns = 1
	}
	return &Coordinator{
		store:  s,
		stt:    stt,
		synth:  synth,
		assets: assets,
		sem:    semaphore.NewWeighted(maxConcurrentRuns),
		log:    logging.New().WithField("module", "pipeline"),
	}
}

// Run processes one lecture whose record was already inserted with status
// processing. On success the note record is returned; on failure the lecture
// is marked failed with the cause and the error is returned. Either way the
// staged asset is gone when Run returns.
func (c *Coordinator) Run(ctx context.Context, lecture store.Lecture) (store.Note, error) {
	log := c.log.WithField("lecture_id", lecture.ID)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.removeAsset(log, lecture.FilePath)
		return store.Note{}, c.fail(log, lecture.ID, err)
	}
	defer c.sem.Release(1)
	defer c.removeAsset(log, lecture.FilePath)

	audio, err := c.assets.Open(ctx, lecture.FilePath)
	if err != nil {
		return store.Note{}, c.fail(log, lecture.ID, err)
	}

	log.Info("starting transcription")
	transcript, err := c.stt.Transcribe(ctx, audio)
	audio.Close()
	if err != nil {
		return store.Note{}, c.fail(log, lecture.ID, err)
	}

	log.Info("generating structured notes")
	result, err := c.synth.GenerateNotes(ctx, transcript.Text)
	if err != nil {
		// ValidationError: transcript unusable, no fabricated notes
		return store.Note{}, c.fail(log, lecture.ID, err)
	}
	if result.Fallback {
		log.Warn("synthesis degraded to fallback notes")
	}

	note := store.Note{
		LectureID:       lecture.ID,
		UserID:          lecture.UserID,
		FullText:        transcript.Text,
		Confidence:      transcript.Confidence,
		WordCount:       transcript.WordCount(),
		Truncated:       result.Truncated,
		StructuredNotes: result.Notes,
	}
	if err := c.store.InsertNote(note); err != nil {
		return store.Note{}, c.fail(log, lecture.ID, err)
	}
	if err := c.store.UpdateLectureStatus(lecture.ID, store.StatusCompleted, ""); err != nil {
		return store.Note{}, c.fail(log, lecture.ID, err)
	}

	log.Info("processing complete")
	return note, nil
}

// fail marks the lecture failed with the causing error and passes the cause
// through. A failed status write is logged, not surfaced; the original cause
// matters more to the caller.
func (c *Coordinator) fail(log *logrus.Entry, lectureID string, cause error) error {
	log.WithError(cause).Warn("pipeline run failed")
	if err := c.store.UpdateLectureStatus(lectureID, store.StatusFailed, cause.Error()); err != nil {
		log.WithField("status_error", err.Error()).Error("could not mark lecture failed")
	}
	return cause
}

// removeAsset uses a fresh context so cleanup still happens when the run's
// context is already cancelled. Cleanup failures never fail the run.
func (c *Coordinator) removeAsset(log *logrus.Entry, handle string) {
	if err := c.assets.Remove(context.Background(), handle); err != nil {
		log.WithField("handle", handle).WithField("cleanup_error", err.Error()).Warn("failed to remove staged asset")
	}
}

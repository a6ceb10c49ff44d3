package transcription

import (
	"fmt"
	"time"
)

// UploadError means the raw audio bytes never made it to the provider.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("audio upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SubmissionError means the transcription job could not be created.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("transcript submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TranscriptionError is a terminal "error" status reported by the provider
// for a submitted job.
type TranscriptionError struct {
	JobID   string
	Message string
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %s", e.Message)
}

// TimeoutError means the job never reached a terminal status within the
// polling deadline. Distinct from TranscriptionError: the remote job may
// still be running.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transcription timed out after %s (job %s)", e.Elapsed, e.JobID)
}

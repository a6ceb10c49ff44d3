package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"lecture-notes-api/config"
	"lecture-notes-api/internal/logging"
)

// TranscriptResult is the terminal output of a completed transcription job.
// Words and Utterances are kept as raw JSON; downstream stages only care
// about the text and confidence.
type TranscriptResult struct {
	Text       string          `json:"text"`
	Words      json.RawMessage `json:"words,omitempty"`
	Utterances json.RawMessage `json:"utterances,omitempty"`
	Confidence float64         `json:"confidence"`
}

// WordCount counts whitespace-separated tokens in the transcript text.
func (r *TranscriptResult) WordCount() int {
	count := 0
	inWord := false
	for _, c := range r.Text {
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}

type jobStatus struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Text       string          `json:"text"`
	Words      json.RawMessage `json:"words"`
	Utterances json.RawMessage `json:"utterances"`
	Confidence float64         `json:"confidence"`
	Error      string          `json:"error"`
}

// Client talks to the AssemblyAI v2 API. It holds no state beyond its
// configuration; one instance is shared by all pipeline runs.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	log          *logrus.Entry
}

func NewClient(cfg config.AssemblyAIConfig, pipe config.PipelineConfig) *Client {
	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		pollInterval: pipe.PollInterval,
		pollTimeout:  pipe.PollTimeout,
		log:          logging.New().WithField("module", "transcription"),
	}
}

// UploadAsset streams the staged audio bytes to the provider's upload
// endpoint and returns the transient URL the provider assigns to them.
func (c *Client) UploadAsset(ctx context.Context, audio io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", audio)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	// Raw binary body, not multipart
	req.Header.Set("Authorization", c.apiKey)

	var payload struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.doJSON(req, &payload); err != nil {
		return "", &UploadError{Err: err}
	}
	if payload.UploadURL == "" {
		return "", &UploadError{Err: errors.New("provider returned no upload_url")}
	}
	return payload.UploadURL, nil
}

// SubmitJob creates a transcription job for an uploaded asset. The job
// options are fixed: speaker labels, auto highlights, punctuation and text
// formatting are always requested.
func (c *Client) SubmitJob(ctx context.Context, audioURL string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"audio_url":       audioURL,
		"speaker_labels":  true,
		"auto_highlights": true,
		"punctuate":       true,
		"format_text":     true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(req, &payload); err != nil {
		return "", &SubmissionError{Err: err}
	}
	if payload.ID == "" {
		return "", &SubmissionError{Err: errors.New("provider returned no job id")}
	}
	return payload.ID, nil
}

// AwaitCompletion polls the job status endpoint until the job reaches a
// terminal status. Polling starts at the configured interval and backs off
// exponentially up to a hard deadline; a job that is still queued or
// processing when the deadline expires yields a TimeoutError.
func (c *Client) AwaitCompletion(ctx context.Context, jobID string) (*TranscriptResult, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.pollInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 1.5
	bo.MaxInterval = 1 * time.Minute
	bo.MaxElapsedTime = c.pollTimeout

	start := time.Now()
	var result *TranscriptResult

	poll := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+jobID, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", c.apiKey)

		var status jobStatus
		if err := c.doJSON(req, &status); err != nil {
			// transient transport failures keep the loop alive
			c.log.WithField("job_id", jobID).WithError(err).Warn("poll request failed")
			return err
		}

		c.log.WithFields(logrus.Fields{
			"job_id": jobID,
			"status": status.Status,
		}).Debug("polled transcription job")

		switch status.Status {
		case "completed":
			result = &TranscriptResult{
				Text:       status.Text,
				Words:      status.Words,
				Utterances: status.Utterances,
				Confidence: status.Confidence,
			}
			return nil
		case "error":
			return backoff.Permanent(&TranscriptionError{JobID: jobID, Message: status.Error})
		default:
			// queued or processing
			return fmt.Errorf("job %s not finished (status %s)", jobID, status.Status)
		}
	}

	err := backoff.Retry(poll, backoff.WithContext(bo, ctx))
	if err != nil {
		var terminal *TranscriptionError
		if errors.As(err, &terminal) {
			return nil, terminal
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TimeoutError{JobID: jobID, Elapsed: time.Since(start)}
	}
	return result, nil
}

// Transcribe runs the full upload / submit / poll sequence. Any stage error
// short-circuits and propagates to the caller.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader) (*TranscriptResult, error) {
	audioURL, err := c.UploadAsset(ctx, audio)
	if err != nil {
		return nil, err
	}
	c.log.Info("audio uploaded, submitting transcription job")

	jobID, err := c.SubmitJob(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	c.log.WithField("job_id", jobID).Info("waiting for transcription")

	result, err := c.AwaitCompletion(ctx, jobID)
	if err != nil {
		return nil, err
	}
	c.log.WithField("job_id", jobID).WithField("confidence", result.Confidence).Info("transcription completed")
	return result, nil
}

func (c *Client) doJSON(req *http.Request, target interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncateBody(body))
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func truncateBody(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}

package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"lecture-notes-api/config"
	"lecture-notes-api/internal/logging"
)

const (
	minTranscriptChars = 50
	// Approx 7500 tokens; keeps the prompt under the provider's input ceiling
	maxTranscriptChars = 30000
	truncationMarker   = "\n\n[Transcript truncated due to length]"
)

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Synthesizer turns a transcript into StructuredNotes through the Gemini
// generateContent API. Everything past the transcript-length precondition is
// fail-soft: provider errors, unparseable output and schema violations all
// degrade to deterministic fallback notes instead of surfacing.
type Synthesizer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	retryFor   time.Duration
	log        *logrus.Entry
}

func NewSynthesizer(cfg config.GeminiConfig) *Synthesizer {
	return &Synthesizer{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		retryFor:   30 * time.Second,
		log:        logging.New().WithField("module", "notes"),
	}
}

// GenerateNotes produces structured notes for the given transcript. The only
// error it ever returns is *ValidationError, raised before any network call;
// every later failure is recovered into fallback notes.
func (s *Synthesizer) GenerateNotes(ctx context.Context, transcript string) (Result, error) {
	trimmed := strings.TrimSpace(transcript)
	if len(trimmed) < minTranscriptChars {
		return Result{}, &ValidationError{Length: len(trimmed)}
	}

	truncated := false
	if len(transcript) > maxTranscriptChars {
		s.log.WithFields(logrus.Fields{
			"original_chars": len(transcript),
			"kept_chars":     maxTranscriptChars,
		}).Warn("transcript truncated to fit provider input budget")
		transcript = transcript[:maxTranscriptChars] + truncationMarker
		truncated = true
	}

	content, err := s.generate(ctx, buildPrompt(transcript))
	if err != nil {
		s.log.WithError(err).Warn("note generation failed, using fallback notes")
		return Result{Notes: fallbackNotes(transcript, err), Fallback: true, Truncated: truncated}, nil
	}

	raw, err := extractJSON(content)
	if err != nil {
		s.log.WithError(err).Warn("could not extract notes JSON from model output, using fallback notes")
		return Result{Notes: fallbackNotes(transcript, err), Fallback: true, Truncated: truncated}, nil
	}

	return Result{Notes: normalize(raw), Truncated: truncated}, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate calls the provider with fixed decoding parameters and a fully
// permissive safety policy. Lecture content (medical, historical, ...) must
// not be over-filtered.
func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.3,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 4096,
		},
	}
	for _, category := range safetyCategories {
		reqBody.SafetySettings = append(reqBody.SafetySettings, safetySetting{
			Category:  category,
			Threshold: "BLOCK_NONE",
		})
	}
	data, _ := json.Marshal(reqBody)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", s.baseURL, s.model)

	var out string
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", s.apiKey)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("provider server error: %d", resp.StatusCode)
			return lastErr
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("provider returned %d", resp.StatusCode)
			return backoff.Permanent(lastErr)
		}

		var parsed generateResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = fmt.Errorf("decode provider response: %w", err)
			return backoff.Permanent(lastErr)
		}
		if len(parsed.Candidates) == 0 {
			lastErr = errors.New("provider returned no candidates")
			return backoff.Permanent(lastErr)
		}

		var sb strings.Builder
		for _, p := range parsed.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		out = sb.String()
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.retryFor
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return "", lastErr
		}
		return "", err
	}
	return out, nil
}

type rawNotes struct {
	Title       *string      `json:"title"`
	Summary     *string      `json:"summary"`
	Sections    []rawSection `json:"sections"`
	KeyTerms    []string     `json:"key_terms"`
	Formulas    []string     `json:"formulas"`
	ActionItems []string     `json:"action_items"`
	Questions   []string     `json:"questions"`
}

type rawSection struct {
	Heading      *string  `json:"heading"`
	Content      *string  `json:"content"`
	BulletPoints []string `json:"bullet_points"`
	Timestamp    *string  `json:"timestamp"`
}

// extractJSON pulls the first brace-delimited JSON object out of the model's
// free-form output, tolerating surrounding markdown code fences.
func extractJSON(text string) (rawNotes, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return rawNotes{}, errors.New("no JSON object in model output")
	}

	var raw rawNotes
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return rawNotes{}, fmt.Errorf("parse notes JSON: %w", err)
	}
	return raw, nil
}

// normalize fills every missing or null field with its named default so the
// seven-field invariant holds no matter what the model omitted.
func normalize(raw rawNotes) StructuredNotes {
	n := StructuredNotes{
		Title:       stringOr(raw.Title, "Untitled Lecture"),
		Summary:     stringOr(raw.Summary, "Summary unavailable"),
		KeyTerms:    sliceOrEmpty(raw.KeyTerms),
		Formulas:    sliceOrEmpty(raw.Formulas),
		ActionItems: sliceOrEmpty(raw.ActionItems),
		Questions:   sliceOrEmpty(raw.Questions),
	}

	for _, rs := range raw.Sections {
		n.Sections = append(n.Sections, Section{
			Heading:      stringOr(rs.Heading, "Untitled Section"),
			Content:      stringOr(rs.Content, ""),
			BulletPoints: sliceOrEmpty(rs.BulletPoints),
			Timestamp:    rs.Timestamp,
		})
	}

	if len(n.Sections) == 0 {
		n.Sections = []Section{{
			Heading:      "Overview",
			Content:      n.Summary,
			BulletPoints: []string{"See transcript for full details"},
			Timestamp:    nil,
		}}
	}

	return n
}

// fallbackNotes is the deterministic degraded result used when generation,
// extraction or parsing failed. Structurally valid by construction.
func fallbackNotes(transcript string, cause error) StructuredNotes {
	words := strings.Fields(transcript)
	preview := transcript
	if len(words) > 100 {
		preview = strings.Join(words[:100], " ") + "..."
	}

	msg := cause.Error()
	if len(msg) > 100 {
		msg = msg[:100]
	}

	return StructuredNotes{
		Title:   "Lecture Notes (Auto-generated)",
		Summary: fmt.Sprintf("Automatic transcription available. Manual review recommended. Error: %s", msg),
		Sections: []Section{{
			Heading: "Transcript Preview",
			Content: preview,
			BulletPoints: []string{
				"Full transcript available",
				"AI note generation encountered an error",
				"Please review the raw transcript",
			},
			Timestamp: nil,
		}},
		KeyTerms:    []string{},
		Formulas:    []string{},
		ActionItems: []string{"Review full transcript manually"},
		Questions:   []string{},
	}
}

func stringOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

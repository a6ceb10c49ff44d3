package notes

import "fmt"

// StructuredNotes is the schema-validated study-notes payload. After
// normalization all seven top-level fields are present and Sections is
// never empty.
type StructuredNotes struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Sections    []Section `json:"sections"`
	KeyTerms    []string  `json:"key_terms"`
	Formulas    []string  `json:"formulas"`
	ActionItems []string  `json:"action_items"`
	Questions   []string  `json:"questions"`
}

type Section struct {
	Heading      string   `json:"heading"`
	Content      string   `json:"content"`
	BulletPoints []string `json:"bullet_points"`
	Timestamp    *string  `json:"timestamp"`
}

// Result is what synthesis hands to the pipeline. Fallback marks the
// deterministic degraded notes produced when generation or parsing failed;
// the pipeline treats both variants as success. Truncated marks a transcript
// that was cut down to the provider's input budget.
type Result struct {
	Notes     StructuredNotes
	Fallback  bool
	Truncated bool
}

// ValidationError is the one synthesis failure the caller must handle: the
// transcript is too short to produce notes from, so nothing was sent to the
// generative provider.
type ValidationError struct {
	Length int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transcript is too short or empty (%d chars)", e.Length)
}

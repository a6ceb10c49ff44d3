package notes

import "fmt"

func buildPrompt(transcript string) string {
	return fmt.Sprintf(`You are an expert educational note-taker. Analyze this lecture transcript and create comprehensive, well-structured notes.

TRANSCRIPT:
%s

Create structured notes in this EXACT JSON format (return ONLY valid JSON, no markdown, no explanations):

{
    "title": "A clear, descriptive title for the lecture",
    "summary": "A 2-3 sentence summary of the main topic and key takeaways",
    "sections": [
        {
            "heading": "Section 1 Title",
            "content": "Detailed explanation in 2-3 paragraphs covering this topic",
            "bullet_points": [
                "Key point 1 with specific details",
                "Key point 2 with specific details",
                "Key point 3 with specific details"
            ],
            "timestamp": "Optional: e.g., '5:30' or 'Beginning' or null"
        }
    ],
    "key_terms": [
        "Important term 1",
        "Important term 2",
        "Important term 3"
    ],
    "formulas": [
        "Mathematical formula 1 (use LaTeX notation if applicable)",
        "Mathematical formula 2"
    ],
    "action_items": [
        "Homework assignment mentioned",
        "Topic to review before next class",
        "Additional reading suggested"
    ],
    "questions": [
        "Important question 1 raised during lecture",
        "Important question 2 for review"
    ]
}

GUIDELINES:
- Create 3-6 logical sections based on natural topic transitions
- Each section should have 3-5 detailed bullet points
- Extract 5-15 key terms (important vocabulary, concepts, names)
- Include formulas/equations if any are discussed
- Note any homework, assignments, or action items mentioned
- List important questions raised (not just rhetorical ones)
- Use empty arrays [] if a category doesn't apply
- Be comprehensive but concise
- Use clear, academic language
- Ensure all JSON is properly formatted with correct quotes and commas

CRITICAL: Return ONLY the JSON object. No markdown code blocks, no explanations, no additional text.`, transcript)
}

package scanning

import (
	"strings"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// noTextMarker is what the LLM prompts ask for when the image has no text.
const noTextMarker = "NO_TEXT"

// newOCRResult cleans a transcription returned by an OCR engine or LLM.
func newOCRResult(text string) *OCRResult {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```text")
		text = strings.TrimPrefix(text, "```plaintext")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == noTextMarker {
		text = ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	return &OCRResult{
		FullText: text,
		Lines:    textnorm.ToLines(text),
	}
}

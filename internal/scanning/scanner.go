package scanning

// OCRResult is the text recognized on a receipt image. An empty FullText is
// a valid result meaning no text was found.
type OCRResult struct {
	FullText string   `json:"full_text"`
	Lines    []string `json:"lines"`
}

// Scanner defines the interface for OCR engines
type Scanner interface {
	// RecognizeText transcribes the text of a receipt image or PDF
	RecognizeText(imageData []byte, contentType string) (*OCRResult, error)
	// Close closes the scanner and releases resources
	Close() error
}

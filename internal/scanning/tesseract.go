package scanning

import (
	"fmt"
	"log/slog"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Scanner interface with a local Tesseract install.
// It needs the language data for every configured language.
type Tesseract struct {
	languages []string
}

// NewTesseract creates a Tesseract scanner; the default language is Spanish.
func NewTesseract(languages ...string) (*Tesseract, error) {
	if len(languages) == 0 {
		languages = []string{"spa"}
	}
	return &Tesseract{languages: languages}, nil
}

// RecognizeText preprocesses the image and runs OCR on it. A gosseract
// client is not safe for concurrent use, so each call gets its own.
func (t *Tesseract) RecognizeText(imageData []byte, contentType string) (*OCRResult, error) {
	img, err := decodeImage(imageData, normalizeMimeType(contentType))
	if err != nil {
		return nil, err
	}
	processed, err := encodePNG(preprocessForOCR(img))
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer func() {
		_ = client.Close()
	}()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("setting tesseract language: %w", err)
	}
	// Keep the column gaps; several receipt layouts depend on them
	if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
		return nil, fmt.Errorf("setting tesseract variable: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, fmt.Errorf("setting tesseract page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(processed); err != nil {
		return nil, fmt.Errorf("loading image into tesseract: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("running tesseract: %w", err)
	}

	slog.Debug("tesseract finished", "chars", len(text))
	return newOCRResult(text), nil
}

// Close is a no-op; clients are released after every call
func (t *Tesseract) Close() error {
	return nil
}

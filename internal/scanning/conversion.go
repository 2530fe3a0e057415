package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// transcriptionPrompt is the shared prompt used by all LLM providers
const transcriptionPrompt = `You are an OCR engine reading a photo of a Colombian supermarket receipt (tiquete / factura de venta).

Transcribe ALL the text exactly as printed, line by line, top to bottom:
- Keep every line on its own line, in the order it appears on the paper.
- Keep product codes, quantities, units (UN, KG, GR), prices and totals exactly as printed, including "." and "," thousands separators and "$" signs.
- Do not translate, correct spelling, summarize, reorder or add anything.
- Do not use markdown code blocks.
- If the image contains no readable text, answer exactly NO_TEXT.`

// minOCRHeight is the height receipts are scaled up to before Tesseract
// reads them; small thermal print is unreadable below it.
const minOCRHeight = 2000

// binarizeThreshold separates ink from paper after contrast stretching.
const binarizeThreshold = 200

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Render the first page (most receipts are single page)
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes any supported upload, applying EXIF orientation so
// phone photos come out upright.
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return pdfToImage(imageData)
	}

	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

// PrepareImage converts an upload to PNG unless it already is one. It
// returns the data, its MIME type and whether a conversion happened.
func PrepareImage(imageData []byte, contentType string) ([]byte, string, bool, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == "image/png" && !isHEICFormat(imageData) {
		return imageData, mimeType, false, nil
	}

	img, err := decodeImage(imageData, mimeType)
	if err != nil {
		return nil, "", false, err
	}
	pngData, err := encodePNG(img)
	if err != nil {
		return nil, "", false, err
	}
	return pngData, "image/png", true, nil
}

// preprocessForOCR prepares a receipt photo for Tesseract: grayscale,
// upscale small images, sharpen, stretch contrast and binarize.
func preprocessForOCR(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	if gray.Bounds().Dy() < minOCRHeight {
		gray = imaging.Resize(gray, 0, minOCRHeight, imaging.Lanczos)
	}
	sharp := imaging.Sharpen(gray, 1.0)
	contrast := imaging.AdjustContrast(sharp, 60)
	return imaging.AdjustFunc(contrast, func(c color.NRGBA) color.NRGBA {
		// grayscale, so red is the brightness
		if c.R > binarizeThreshold {
			return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		return color.NRGBA{A: 255}
	})
}

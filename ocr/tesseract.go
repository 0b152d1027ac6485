// Package ocr adapts Tesseract to the OCREngine interface used by the
// perception pipeline.
package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs text recognition through a persistent gosseract client.
// Recognize serializes recognition calls, the pipeline's single-flight OCR
// loop never issues concurrent passes but other callers might.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a recognizer restricted to the given language, for
// example "eng".  An empty language keeps the gosseract default.
func NewTesseract(language string) (*Tesseract, error) {

	client := gosseract.NewClient()

	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			client.Close()
			return nil, fmt.Errorf("error setting OCR language: %w", err)
		}
	}

	return &Tesseract{client: client}, nil
}

// Recognize extracts the text visible in the image
func (t *Tesseract) Recognize(img image.Image) (string, error) {

	var buf bytes.Buffer

	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("error encoding OCR image: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("error setting OCR image: %w", err)
	}

	text, err := t.client.Text()

	if err != nil {
		return "", fmt.Errorf("error running OCR: %w", err)
	}

	return text, nil
}

// Close releases the underlying Tesseract resources
func (t *Tesseract) Close() error {

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.client.Close()
}

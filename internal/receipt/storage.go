package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StoredImage identifies an uploaded ticket image
type StoredImage struct {
	Ref string `json:"ref"`           // key used to read or delete the image
	URL string `json:"url,omitempty"` // public link, when the backend has one
}

// ImageStore is where ticket images are kept
type ImageStore interface {
	// Upload stores data under name
	Upload(name string, data []byte, contentType string) (*StoredImage, error)

	// Get retrieves an image by ref
	Get(ref string) ([]byte, error)

	// Delete removes an image
	Delete(ref string) error
}

// LocalStorage implements ImageStore using the local filesystem
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new LocalStorage instance. baseURL may be empty
// when images are only served through the API.
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// path resolves ref inside basePath, refusing anything that would escape it
func (l *LocalStorage) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || ref == "." || ref == ".." {
		return "", fmt.Errorf("%w: bad image ref %q", ErrInput, ref)
	}
	return filepath.Join(l.basePath, ref), nil
}

// Upload saves an image to local storage
func (l *LocalStorage) Upload(name string, data []byte, _ string) (*StoredImage, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}

	img := &StoredImage{Ref: name}
	if l.baseURL != "" {
		img.URL = l.baseURL + "/" + name
	}
	return img, nil
}

// Get retrieves an image from local storage
func (l *LocalStorage) Get(ref string) ([]byte, error) {
	path, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: image %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes an image from local storage
func (l *LocalStorage) Delete(ref string) error {
	path, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

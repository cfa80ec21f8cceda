package infra

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// QRCodeWriter stores service-rendered QR code images on disk.
type QRCodeWriter struct {
	basePath string
}

// NewQRCodeWriter creates a writer storing images under basePath.
// An empty basePath means the current working directory.
func NewQRCodeWriter(basePath string) (*QRCodeWriter, error) {
	if basePath == "" {
		basePath = "."
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create qrcode directory: %w", err)
	}
	return &QRCodeWriter{basePath: basePath}, nil
}

// Save decodes the raw PNG returned by the service and writes it to
// fileName under the base path. Decoding first rejects error pages or
// truncated downloads before anything hits the disk.
func (w *QRCodeWriter) Save(raw []byte, fileName string) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty qrcode response")
	}
	if fileName == "" {
		fileName = "qrcode.png"
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to decode qrcode image: %w", err)
	}

	filePath := filepath.Join(w.basePath, fileName)
	if err := imaging.Save(img, filePath); err != nil {
		return "", fmt.Errorf("failed to save qrcode: %w", err)
	}

	return filePath, nil
}

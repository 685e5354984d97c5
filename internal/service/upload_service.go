package service

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// UploadService guarda adjuntos en disco y devuelve la referencia opaca que
// el núcleo de mensajería almacena y republica tal cual.
type UploadService struct {
	dir     string
	baseURL string
}

type UploadResult struct {
	FileURL     string `json:"file_url"`
	ContentType string `json:"content_type"`
	IsImage     bool   `json:"is_image"`
}

var ErrNoFile = errors.New("no file uploaded")

func NewUploadService(dir, baseURL string) (*UploadService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &UploadService{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save escribe el archivo con un nombre único conservando la extensión
// original y clasifica el contenido por su tipo real, no por el nombre.
func (s *UploadService) Save(originalName string, src io.Reader) (UploadResult, error) {
	if s == nil {
		return UploadResult{}, errors.New("upload service not configured")
	}
	if src == nil {
		return UploadResult{}, ErrNoFile
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	name := fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), rand.Intn(1_000_000_000), ext)
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return UploadResult{}, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return UploadResult{}, err
	}

	mtype, err := mimetype.DetectFile(path)
	contentType := "application/octet-stream"
	if err == nil {
		contentType = mtype.String()
	}

	return UploadResult{
		FileURL:     s.baseURL + "/uploads/" + name,
		ContentType: contentType,
		IsImage:     strings.HasPrefix(contentType, "image/"),
	}, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shenikar/alerto360/internal/models"
)

// LocalStore хранит изображения в каталоге на диске
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save записывает файл и возвращает путь к нему
func (s *LocalStore) Save(_ context.Context, data []byte, _ string, ext string) (string, error) {
	name, err := objectName(ext)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return filepath.ToSlash(path), nil
}

// Delete удаляет файл. Отсутствующий файл не считается ошибкой.
func (s *LocalStore) Delete(_ context.Context, path string) error {
	clean, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// Open открывает файл на чтение, тип содержимого определяется по сигнатуре
func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, string, error) {
	clean, err := s.resolve(path)
	if err != nil {
		return nil, "", err
	}

	mtype, err := mimetype.DetectFile(clean)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("image %s: %w", path, models.ErrImageNotFound)
		}
		return nil, "", fmt.Errorf("failed to detect image type: %w", err)
	}

	f, err := os.Open(clean)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("image %s: %w", path, models.ErrImageNotFound)
		}
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	return f, mtype.String(), nil
}

// resolve не выпускает путь за пределы каталога загрузок
func (s *LocalStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if !strings.HasPrefix(clean, filepath.Clean(s.dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to access %s outside upload dir", path)
	}
	return clean, nil
}

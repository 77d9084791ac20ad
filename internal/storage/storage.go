package storage

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	nanoidSize     = 21
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// objectName генерирует уникальное имя файла с расширением
func objectName(ext string) (string, error) {
	id, err := gonanoid.Generate(nanoidAlphabet, nanoidSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate object name: %w", err)
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return id + ext, nil
}

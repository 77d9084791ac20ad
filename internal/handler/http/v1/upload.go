package v1

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shenikar/alerto360/internal/models"
)

const imageField = "image"

var (
	allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

	errImageTooLarge = errors.New("image is too large")
)

type uploadedImage struct {
	data        []byte
	contentType string
	ext         string
}

// readImage читает файл image из формы. Отсутствие файла не ошибка.
func readImage(form *multipart.Form, maxBytes int64) (*uploadedImage, error) {
	files := form.File[imageField]
	if len(files) == 0 {
		return nil, nil
	}
	if files[0].Size > maxBytes {
		return nil, errImageTooLarge
	}

	f, err := files[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, errImageTooLarge
	}
	if len(data) == 0 {
		return nil, nil
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return nil, fmt.Errorf("%w: unsupported image type %s", models.ErrValidation, mtype.String())
	}

	return &uploadedImage{
		data:        data,
		contentType: mtype.String(),
		ext:         mtype.Extension(),
	}, nil
}

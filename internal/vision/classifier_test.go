package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"
	"testing"

	"github.com/shenikar/alerto360/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(c color.Color, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestClassify_SolidColors(t *testing.T) {
	tests := []struct {
		name          string
		color         color.RGBA
		wantType      models.IncidentType
		wantResponder models.ResponderType
		wantConf      float64
	}{
		{
			name:          "orange is fire",
			color:         color.RGBA{R: 255, G: 140, B: 0, A: 255},
			wantType:      models.IncidentFire,
			wantResponder: models.ResponderBFP,
			wantConf:      95,
		},
		{
			name:          "blue is flood",
			color:         color.RGBA{R: 0, G: 0, B: 255, A: 255},
			wantType:      models.IncidentFlood,
			wantResponder: models.ResponderMDDRMO,
			wantConf:      80,
		},
		{
			name:          "green has no strong signal",
			color:         color.RGBA{R: 0, G: 200, B: 0, A: 255},
			wantType:      models.IncidentOther,
			wantResponder: models.ResponderMDDRMO,
			wantConf:      baselineConfidence,
		},
	}

	classifier := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodePNG(t, solidImage(tt.color, 120, 80))

			res := classifier.Classify(bytes.NewReader(data))

			assert.False(t, res.Fallback)
			assert.Equal(t, tt.wantType, res.IncidentType)
			assert.Equal(t, tt.wantResponder, res.ResponderType)
			assert.InDelta(t, tt.wantConf, res.Confidence, 0.01)
			assert.NotEmpty(t, res.Description)
		})
	}
}

func TestClassify_FireDescriptionAndDetections(t *testing.T) {
	res := ClassifyImage(solidImage(color.RGBA{R: 255, G: 140, B: 0, A: 255}, 60, 60))

	assert.Equal(t, "Fire incident detected - active flames visible in the image", res.Description)
	objects := make([]string, 0, len(res.Detections))
	for _, d := range res.Detections {
		objects = append(objects, d.Object)
		assert.GreaterOrEqual(t, d.Confidence, 0.0)
		assert.LessOrEqual(t, d.Confidence, 100.0)
	}
	assert.Contains(t, objects, objectFire)
}

func TestClassify_Deterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for x := 0; x < 200; x++ {
		for y := 0; y < 100; y++ {
			if x < 100 {
				img.Set(x, y, color.RGBA{R: 0, G: 0, B: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
			}
		}
	}
	data := encodePNG(t, img)

	first := NewClassifier().Classify(bytes.NewReader(data))
	second := NewClassifier().Classify(bytes.NewReader(data))
	assert.Equal(t, first, second)
}

func TestClassify_GIF(t *testing.T) {
	palette := color.Palette{color.RGBA{R: 0, G: 0, B: 255, A: 255}}
	img := image.NewPaletted(image.Rect(0, 0, 50, 50), palette)

	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))

	res := NewClassifier().Classify(&buf)
	assert.Equal(t, models.IncidentFlood, res.IncidentType)
}

func TestClassify_UndecodableFallsBack(t *testing.T) {
	inputs := map[string][]byte{
		"text":      []byte("definitely not an image"),
		"empty":     {},
		"truncated": encodePNG(t, solidImage(color.White, 10, 10))[:20],
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			res := NewClassifier().Classify(bytes.NewReader(data))

			assert.True(t, res.Fallback)
			assert.Equal(t, models.IncidentOther, res.IncidentType)
			assert.Equal(t, models.ResponderMDDRMO, res.ResponderType)
			assert.Zero(t, res.Confidence)
			assert.Equal(t, FallbackDescription, res.Description)
		})
	}
}

func TestClassify_ReaderError(t *testing.T) {
	res := NewClassifier().Classify(&failingReader{})
	assert.True(t, res.Fallback)
	assert.True(t, strings.HasPrefix(res.Error, "failed to read"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, assert.AnError
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(-1))
	assert.Equal(t, 100.0, percent(3))
	assert.Equal(t, 33.3, percent(0.3333))
}

func TestColorPredicates(t *testing.T) {
	assert.True(t, isFireColor(255, 140, 0))
	assert.False(t, isFireColor(0, 0, 255))
	assert.True(t, isWaterColor(20, 60, 200))
	assert.True(t, isSmokeColor(120, 120, 120))
	assert.True(t, isSkinTone(220, 170, 130))
	assert.True(t, isTigerPattern(230, 140, 40))
	assert.True(t, isMetallicSurface(130, 135, 140))
}

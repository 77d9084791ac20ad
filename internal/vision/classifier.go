// Package vision угадывает тип происшествия по цветам пикселей фотографии.
// Это эвристика без обучения: пиксели сетки раскладываются по цветовым корзинам,
// доли корзин превращаются в оценки кандидатов, побеждает максимальная.
package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/shenikar/alerto360/internal/models"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// детекции ниже порога не попадают в результат
	detectionThreshold = 0.3
	// оценка для распознанного изображения без явных признаков
	baselineConfidence = 30
	// защита от "декомпрессионных бомб"
	maxPixels = 40_000_000

	FallbackDescription = "Please manually describe the incident"
)

// Detection - найденный на изображении объект
type Detection struct {
	Object      string  `json:"object"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// Result - итог классификации. Confidence в диапазоне [0,100].
type Result struct {
	IncidentType  models.IncidentType  `json:"incident_type"`
	ResponderType models.ResponderType `json:"responder_type"`
	Confidence    float64              `json:"confidence"`
	Description   string               `json:"description"`
	Detections    []Detection          `json:"detections,omitempty"`
	Fallback      bool                 `json:"fallback"`
	Error         string               `json:"error,omitempty"`
}

// Fallback - ответ, когда изображение не удалось разобрать
func Fallback(reason string) Result {
	return Result{
		IncidentType:  models.IncidentOther,
		ResponderType: models.ResponderMDDRMO,
		Confidence:    0,
		Description:   FallbackDescription,
		Fallback:      true,
		Error:         reason,
	}
}

// Classifier не имеет состояния и безопасен для конкурентного использования
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify декодирует изображение и классифицирует его. Никогда не паникует:
// любая ошибка превращается в Fallback.
func (c *Classifier) Classify(r io.Reader) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Fallback(fmt.Sprintf("image analysis failed: %v", p))
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return Fallback("failed to read image")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Fallback("invalid image file")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return Fallback("image dimensions are not supported")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Fallback("invalid image file")
	}
	return ClassifyImage(img)
}

// ClassifyImage классифицирует уже декодированное изображение
func ClassifyImage(img image.Image) Result {
	counts := sample(img)
	if counts.total == 0 {
		return Fallback("image is empty")
	}

	candidates := counts.candidates()

	best := candidate{}
	detections := make([]Detection, 0, len(candidates))
	for _, cand := range candidates {
		if cand.confidence > detectionThreshold {
			detections = append(detections, Detection{
				Object:      cand.object,
				Confidence:  percent(cand.confidence),
				Description: cand.detail,
			})
		}
		if cand.confidence > best.confidence {
			best = cand
		}
	}

	if best.confidence <= detectionThreshold {
		return Result{
			IncidentType:  models.IncidentOther,
			ResponderType: models.ResponderMDDRMO,
			Confidence:    baselineConfidence,
			Description:   "Emergency situation detected in image - please verify incident type",
			Detections:    detections,
		}
	}

	incidentType, responder := mapObject(best.object)
	return Result{
		IncidentType:  incidentType,
		ResponderType: responder,
		Confidence:    percent(best.confidence),
		Description:   best.summary,
		Detections:    detections,
	}
}

// mapObject: огонь и дым - пожар, вода - наводнение, металл - ДТП, остальное - Other
func mapObject(object string) (models.IncidentType, models.ResponderType) {
	switch object {
	case objectFire, objectSmoke:
		return models.IncidentFire, models.ResponderBFP
	case objectWater:
		return models.IncidentFlood, models.ResponderMDDRMO
	case objectVehicle:
		return models.IncidentAccident, models.ResponderMDDRMO
	default:
		return models.IncidentOther, models.ResponderMDDRMO
	}
}

func percent(v float64) float64 {
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*1000) / 10
}

package vision

import (
	"fmt"
	"image"
	"math"
)

const (
	objectFire    = "fire"
	objectSmoke   = "smoke"
	objectWater   = "water"
	objectVehicle = "vehicle"
	objectPerson  = "person"
	objectAnimal  = "animal"

	// примерно 50 отсчетов по короткой стороне
	samplesPerSide = 50
)

type colorCounts struct {
	total int

	fire, hotSpot   int
	smoke, gray     int
	water, reflect  int
	vehicle, metal  int
	skin, clothing  int
	fur, furPattern int
}

type candidate struct {
	object     string
	confidence float64 // 0..1
	detail     string
	summary    string
}

// sample обходит сетку пикселей с шагом, зависящим от размера изображения
func sample(img image.Image) colorCounts {
	b := img.Bounds()
	step := min(b.Dx(), b.Dy()) / samplesPerSide
	if step < 1 {
		step = 1
	}

	var c colorCounts
	for x := b.Min.X; x < b.Max.X; x += step {
		for y := b.Min.Y; y < b.Max.Y; y += step {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			c.add(int(r16>>8), int(g16>>8), int(b16>>8))
		}
	}
	return c
}

func (c *colorCounts) add(r, g, b int) {
	c.total++

	if isFireColor(r, g, b) {
		c.fire++
		if r > 200 && g > 100 && b < 80 {
			c.hotSpot++
		}
	}
	if isSmokeColor(r, g, b) {
		c.smoke++
		if isGrayArea(r, g, b) {
			c.gray++
		}
	}
	if isWaterColor(r, g, b) {
		c.water++
		if isReflectiveSurface(r, g, b) {
			c.reflect++
		}
	}
	if isVehicleColor(r, g, b) {
		c.vehicle++
		if isMetallicSurface(r, g, b) {
			c.metal++
		}
	}
	if isSkinTone(r, g, b) {
		c.skin++
	} else if r > 50 || g > 50 || b > 50 {
		c.clothing++
	}
	if isAnimalFur(r, g, b) {
		c.fur++
		if isTigerPattern(r, g, b) {
			c.furPattern += 2
		}
	}
}

func (c colorCounts) ratio(n int) float64 {
	if c.total == 0 {
		return 0
	}
	return float64(n) / float64(c.total)
}

// candidates - оценки в фиксированном порядке; при равенстве выигрывает более ранний
func (c colorCounts) candidates() []candidate {
	fireSummary := "Fire incident detected - smoke and potential fire hazard detected"
	if c.fire > c.smoke {
		fireSummary = "Fire incident detected - active flames visible in the image"
	}

	return []candidate{
		{
			object:     objectFire,
			confidence: math.Min(0.95, (c.ratio(c.fire)*0.7+c.ratio(c.hotSpot)*0.3)*2),
			detail:     fmt.Sprintf("Fire detected - %d fire-colored samples found", c.fire),
			summary:    fireSummary,
		},
		{
			object:     objectSmoke,
			confidence: c.ratio(c.smoke)*0.7 + c.ratio(c.gray)*0.3,
			detail:     "Smoke detected - possible fire incident",
			summary:    "Fire incident detected - smoke and potential fire hazard detected",
		},
		{
			object:     objectWater,
			confidence: c.ratio(c.water)*0.8 + c.ratio(c.reflect)*0.2,
			detail:     "Water detected - possible flooding",
			summary:    "Flooding detected - water accumulation visible in the area",
		},
		{
			object:     objectVehicle,
			confidence: c.ratio(c.vehicle)*0.7 + c.ratio(c.metal)*0.3,
			detail:     "Vehicle detected - metallic surfaces found",
			summary:    "Traffic accident or emergency vehicle scene detected",
		},
		{
			object:     objectPerson,
			confidence: c.ratio(c.skin)*0.8 + c.ratio(c.clothing)*0.2,
			detail:     "Person detected - skin tones identified",
			summary:    "Person detected in the image - please describe the emergency",
		},
		{
			object:     objectAnimal,
			confidence: math.Min(0.9, (c.ratio(c.fur)*0.6+c.ratio(c.furPattern)*0.4)*1.5),
			detail:     "Animal detected - possible stray or wild animal",
			summary:    "Animal detected in the image - possible stray or wild animal",
		},
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func avg(r, g, b int) int {
	return (r + g + b) / 3
}

func isFireColor(r, g, b int) bool {
	return (r > 150 && g > 50 && b < 100) || (r > 200 && g > 150 && b < 150)
}

func isSmokeColor(r, g, b int) bool {
	a := avg(r, g, b)
	return abs(r-g) < 40 && abs(g-b) < 40 && a > 60 && a < 160
}

func isGrayArea(r, g, b int) bool {
	return abs(r-g) < 20 && abs(g-b) < 20 && r > 80 && r < 180
}

func isWaterColor(r, g, b int) bool {
	return (b > 120 && r < 150 && g < 200) || (b > 150 && g > 150 && r < 100)
}

func isReflectiveSurface(r, g, b int) bool {
	return avg(r, g, b) > 150 && abs(r-g) < 30 && abs(g-b) < 30
}

func isVehicleColor(r, g, b int) bool {
	a := avg(r, g, b)
	return a > 50 && a < 220 && abs(r-g) < 50 && abs(g-b) < 50
}

func isMetallicSurface(r, g, b int) bool {
	a := avg(r, g, b)
	return abs(r-g) < 20 && abs(g-b) < 20 && a > 80 && a < 180
}

func isSkinTone(r, g, b int) bool {
	return r > 120 && g > 80 && g < 220 && b > 60 && b < 180 && r > g && g > b
}

func isAnimalFur(r, g, b int) bool {
	return (r > 100 && r < 200 && g > 60 && g < 150 && b < 100) ||
		(r < 80 && g < 80 && b < 80) ||
		isTigerPattern(r, g, b) ||
		(r > 200 && g > 200 && b > 200)
}

func isTigerPattern(r, g, b int) bool {
	return r > 180 && g > 100 && g < 180 && b < 100
}

package service

import (
	"testing"
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/pkg/models"

	"github.com/stretchr/testify/assert"
)

func testDetector(t *testing.T) *ResetDetector {
	t.Helper()
	return NewResetDetector(config.LoadConfig())
}

func TestClassifyFirstSampleIsNormal(t *testing.T) {
	d := testDetector(t)

	// Без истории любое значение устанавливает базовую линию
	got := d.Classify(nil, time.Time{}, 123456, time.Now())
	assert.Equal(t, ClassificationNormal, got)
}

func TestClassifyLargeDropDetected(t *testing.T) {
	d := testDetector(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	last := &models.DistancePoint{DistanceM: 1000, SpeedKmh: 50, Timestamp: t0}

	// Падение на 85% превышает порог в 80%
	got := d.Classify(last, t0, 150, t0.Add(time.Second))
	assert.Equal(t, ClassificationDrop, got)
}

func TestClassifySmallDropIsNormal(t *testing.T) {
	d := testDetector(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	last := &models.DistancePoint{DistanceM: 1000, SpeedKmh: 50, Timestamp: t0}

	// Падение на 1% — шум, а не сброс
	got := d.Classify(last, t0, 990, t0.Add(time.Second))
	assert.Equal(t, ClassificationNormal, got)
}

func TestClassifySpeedAnomaly(t *testing.T) {
	d := testDetector(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	last := &models.DistancePoint{DistanceM: 1000, SpeedKmh: 50, Timestamp: t0}

	// +100 м за секунду — implied 360 км/ч
	got := d.Classify(last, t0, 1100, t0.Add(time.Second))
	assert.Equal(t, ClassificationSpeedAnomaly, got)
}

func TestClassifyDropWinsOverSpeedAnomaly(t *testing.T) {
	d := testDetector(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	last := &models.DistancePoint{DistanceM: 1000, SpeedKmh: 50, Timestamp: t0}

	// Падение на 90% за секунду тянет на обе классификации,
	// но сброс — более серьезное нарушение
	got := d.Classify(last, t0, 100, t0.Add(time.Second))
	assert.Equal(t, ClassificationDrop, got)
}

func TestClassifyLargeTimeGapRebaselines(t *testing.T) {
	d := testDetector(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	last := &models.DistancePoint{DistanceM: 1000, SpeedKmh: 50, Timestamp: t0}

	// Разрыв больше окна истории: сравнение с устаревшей точкой бессмысленно
	got := d.Classify(last, t0, 50, t0.Add(10*time.Minute))
	assert.Equal(t, ClassificationNormal, got)
}

func TestDropPercentage(t *testing.T) {
	assert.InDelta(t, 85, DropPercentage(1000, 150), 0.001)
	assert.Equal(t, float64(0), DropPercentage(1000, 1000))
	assert.Equal(t, float64(0), DropPercentage(1000, 1200))
	assert.Equal(t, float64(0), DropPercentage(0, 100))
}

package service

import (
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/pkg/models"
)

// StatusDetector определяет состояние машины (RUNNING/PIT/STOPPED/OUT)
// по недавней телеметрии
type StatusDetector struct {
	cfg *config.Config
}

// NewStatusDetector создает новый детектор статуса машины
func NewStatusDetector(cfg *config.Config) *StatusDetector {
	return &StatusDetector{cfg: cfg}
}

// Determine возвращает статус машины на момент now
func (d *StatusDetector) Determine(points []models.DistancePoint, now time.Time) models.CarStatus {
	if len(points) == 0 {
		return models.StatusOut
	}

	last := points[len(points)-1]

	// Долгое молчание — машина сошла
	if now.Sub(last.Timestamp).Seconds() > float64(d.cfg.Status.DataTimeoutSeconds) {
		return models.StatusOut
	}

	// Статистика скоростей в окне анализа
	window := time.Duration(d.cfg.Status.WindowSeconds) * time.Second
	cutoff := now.Add(-window)

	var sum, max float64
	var n int
	for _, p := range points {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		sum += p.SpeedKmh
		if p.SpeedKmh > max {
			max = p.SpeedKmh
		}
		n++
	}
	if n == 0 {
		sum, max, n = last.SpeedKmh, last.SpeedKmh, 1
	}
	avg := sum / float64(n)

	current := last.SpeedKmh
	stopped := d.cfg.Status.StoppedSpeedThresholdKmh

	if current < stopped {
		if max < 10 {
			// Почти никакого движения за все окно
			return models.StatusStopped
		}
		return models.StatusPit
	}

	if avg < d.cfg.Status.PitSpeedThresholdKmh {
		// Стабильно низкая скорость — похоже на пит-лейн
		return models.StatusPit
	}

	return models.StatusRunning
}

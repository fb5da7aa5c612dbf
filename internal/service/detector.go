package service

import (
	"math"
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/pkg/models"
)

// Classification результат классификации нового значения дистанции
type Classification string

const (
	ClassificationNormal       Classification = "normal"
	ClassificationDrop         Classification = "drop"
	ClassificationSpeedAnomaly Classification = "speed_anomaly"
)

// ResetDetector классифицирует новое сырое значение дистанции относительно
// состояния машины. Чистый шаг: состояние читается, но не мутируется.
type ResetDetector struct {
	cfg *config.Config
}

// NewResetDetector создает новый детектор сбросов дистанции
func NewResetDetector(cfg *config.Config) *ResetDetector {
	return &ResetDetector{cfg: cfg}
}

// Classify определяет, является ли новое значение дистанции нормальным
// приращением, падением (сбросом) или аномальным скачком.
//
// last — последняя принятая точка (nil, если истории нет),
// baseline — метка времени, от которой считается elapsed,
// rawDistance и ts — проверяемый сэмпл.
func (d *ResetDetector) Classify(last *models.DistancePoint, baseline time.Time, rawDistance float64, ts time.Time) Classification {
	// Первый сэмпл машины всегда устанавливает базовую линию
	if last == nil {
		return ClassificationNormal
	}

	elapsed := ts.Sub(baseline).Seconds()

	// Слишком большой разрыв в данных: заново устанавливаем базу
	// вместо того, чтобы сравнивать с устаревшей точкой
	if elapsed > float64(d.cfg.Detection.HistoryWindowSeconds) {
		return ClassificationNormal
	}

	// Падение проверяется раньше аномалии скорости: сброс датчика —
	// более серьезное нарушение целостности, чем скачок
	if last.DistanceM > 0 && rawDistance < last.DistanceM {
		dropPct := (last.DistanceM - rawDistance) / last.DistanceM * 100
		if dropPct > d.cfg.Detection.DropThresholdPercent {
			return ClassificationDrop
		}
	}

	if elapsed > 0 {
		impliedKmh := math.Abs(rawDistance-last.DistanceM) / elapsed * 3.6
		if impliedKmh > d.cfg.Detection.SpeedAnomalyThresholdKmh {
			return ClassificationSpeedAnomaly
		}
	}

	return ClassificationNormal
}

// DropPercentage вычисляет процент падения дистанции относительно последней
// хорошей точки (0, если падения нет)
func DropPercentage(lastDistance, rawDistance float64) float64 {
	if lastDistance <= 0 || rawDistance >= lastDistance {
		return 0
	}
	return (lastDistance - rawDistance) / lastDistance * 100
}

package service

import (
	"math"
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/pkg/models"
)

// Forecaster прогнозирует обгоны по скорректированным потокам дистанции.
// Результат вычисляется заново на каждый запрос и нигде не сохраняется.
type Forecaster struct {
	cfg *config.Config
}

// NewForecaster создает новый прогнозировщик обгонов
func NewForecaster(cfg *config.Config) *Forecaster {
	return &Forecaster{cfg: cfg}
}

// Forecast строит прогноз для упорядоченной пары (догоняющий, цель).
// Обе истории должны быть непустыми — это гарантирует вызывающая сторона.
func (f *Forecaster) Forecast(chasing, target []models.DistancePoint, now time.Time) models.ForecastResult {
	chasingLast := chasing[len(chasing)-1]
	targetLast := target[len(target)-1]

	gap := targetLast.DistanceM - chasingLast.DistanceM
	result := models.ForecastResult{CurrentGapM: gap}

	// Догоняющий уже впереди — догонять некого
	if gap <= 0 {
		result.Status = models.ForecastAhead
		result.DistanceAdvantageM = -gap
		return result
	}

	window := time.Duration(f.cfg.Forecast.TrendWindowSeconds) * time.Second
	chasingSpeed := averageSpeedKmh(chasing, now, window)
	targetSpeed := averageSpeedKmh(target, now, window)

	result.ChasingSpeedKmh = chasingSpeed
	result.TargetSpeedKmh = targetSpeed

	closing := chasingSpeed - targetSpeed
	result.ClosingRateKmh = closing

	// Скорость, с которой догоняющий закрыл бы разрыв в пределах горизонта
	horizon := float64(f.cfg.Forecast.HorizonSeconds)
	if horizon > 0 {
		result.RequiredSpeedKmh = targetSpeed + gap/horizon*3.6
	}

	if math.Abs(closing) <= f.cfg.Forecast.StalledToleranceKmh {
		result.Status = models.ForecastStalled
		return result
	}

	if closing < 0 {
		result.Status = models.ForecastFallingBehind
		return result
	}

	result.Status = models.ForecastCatchingUp
	closingMps := closing / 3.6
	eta := gap/closingMps + f.cfg.Forecast.OvertakingBufferSeconds
	if !math.IsNaN(eta) && !math.IsInf(eta, 0) && eta > 0 {
		result.ETASeconds = &eta
	}

	return result
}

// averageSpeedKmh средняя скорость по точкам внутри окна от момента now.
// Если в окно не попала ни одна точка, берется скорость последней.
func averageSpeedKmh(points []models.DistancePoint, now time.Time, window time.Duration) float64 {
	cutoff := now.Add(-window)

	var sum float64
	var n int
	for _, p := range points {
		if p.Timestamp.Before(cutoff) || p.Timestamp.After(now) {
			continue
		}
		sum += p.SpeedKmh
		n++
	}
	if n == 0 {
		return points[len(points)-1].SpeedKmh
	}
	return sum / float64(n)
}

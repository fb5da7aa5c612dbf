package service

import (
	"testing"
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testForecaster(t *testing.T) *Forecaster {
	t.Helper()
	return NewForecaster(config.LoadConfig())
}

func historyAt(t0 time.Time, speed float64, distances ...float64) []models.DistancePoint {
	points := make([]models.DistancePoint, 0, len(distances))
	for i, d := range distances {
		points = append(points, models.DistancePoint{
			DistanceM: d,
			SpeedKmh:  speed,
			Timestamp: t0.Add(time.Duration(i) * time.Second),
		})
	}
	return points
}

func TestForecastCatchingUp(t *testing.T) {
	f := testForecaster(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	chasing := historyAt(t0, 80, 450, 472, 500)
	target := historyAt(t0, 60, 770, 785, 800)
	now := t0.Add(2 * time.Second)

	result := f.Forecast(chasing, target, now)

	assert.Equal(t, models.ForecastCatchingUp, result.Status)
	assert.InDelta(t, 300, result.CurrentGapM, 0.001)
	assert.InDelta(t, 20, result.ClosingRateKmh, 0.001)

	// 300 м при сближении 20 км/ч = 54 с, плюс 7 с буфера на сам маневр
	require.NotNil(t, result.ETASeconds)
	assert.InDelta(t, 61, *result.ETASeconds, 0.01)

	// Скорость для обгона в пределах горизонта 600 с
	assert.InDelta(t, 61.8, result.RequiredSpeedKmh, 0.01)
}

func TestForecastAhead(t *testing.T) {
	f := testForecaster(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	chasing := historyAt(t0, 70, 850, 900)
	target := historyAt(t0, 70, 750, 800)

	result := f.Forecast(chasing, target, t0.Add(time.Second))

	assert.Equal(t, models.ForecastAhead, result.Status)
	assert.InDelta(t, -100, result.CurrentGapM, 0.001)
	assert.InDelta(t, 100, result.DistanceAdvantageM, 0.001)
	assert.Nil(t, result.ETASeconds)
}

func TestForecastFallingBehind(t *testing.T) {
	f := testForecaster(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	chasing := historyAt(t0, 50, 450, 500)
	target := historyAt(t0, 80, 750, 800)

	result := f.Forecast(chasing, target, t0.Add(time.Second))

	assert.Equal(t, models.ForecastFallingBehind, result.Status)
	assert.InDelta(t, -30, result.ClosingRateKmh, 0.001)
	assert.Nil(t, result.ETASeconds)
}

func TestForecastStalledAtEqualSpeeds(t *testing.T) {
	f := testForecaster(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	chasing := historyAt(t0, 60, 450, 500)
	target := historyAt(t0, 60, 750, 800)

	result := f.Forecast(chasing, target, t0.Add(time.Second))

	assert.Equal(t, models.ForecastStalled, result.Status)
	assert.InDelta(t, 300, result.CurrentGapM, 0.001)
	assert.Nil(t, result.ETASeconds)
}

func TestForecastIgnoresPointsOutsideTrendWindow(t *testing.T) {
	f := testForecaster(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	// Старая точка с аномально высокой скоростью лежит вне окна тренда
	// и не должна искажать среднюю
	chasing := []models.DistancePoint{
		{DistanceM: 100, SpeedKmh: 300, Timestamp: t0.Add(-20 * time.Minute)},
		{DistanceM: 450, SpeedKmh: 80, Timestamp: t0},
		{DistanceM: 500, SpeedKmh: 80, Timestamp: t0.Add(time.Second)},
	}
	target := historyAt(t0, 60, 750, 800)

	result := f.Forecast(chasing, target, t0.Add(time.Second))

	assert.Equal(t, models.ForecastCatchingUp, result.Status)
	assert.InDelta(t, 80, result.ChasingSpeedKmh, 0.001)
}

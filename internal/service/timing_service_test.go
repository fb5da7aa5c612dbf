package service

import (
	"sync"
	"testing"
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/internal/model"
	"race-telemetry-go/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResetRepo хранит сессии и события в памяти вместо БД
type fakeResetRepo struct {
	mu       sync.Mutex
	sessions []*model.RaceSession
	events   []*model.ResetEvent
}

func (f *fakeResetRepo) CreateSession(session *model.RaceSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeResetRepo) UpdateSession(session *model.RaceSession) error {
	return nil
}

func (f *fakeResetRepo) CreateEvent(event *model.ResetEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeResetRepo) ListBySession(sessionID string, limit int) ([]*model.ResetEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ResetEvent
	for _, e := range f.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeResetRepo) ListByCar(sessionID, carID string, limit int) ([]*model.ResetEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ResetEvent
	for _, e := range f.events {
		if e.SessionID == sessionID && e.CarID == carID {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeResetRepo) CountByMethod(sessionID string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, e := range f.events {
		if e.SessionID == sessionID {
			counts[e.RecoveryMethod]++
		}
	}
	return counts, nil
}

func newTestService(t *testing.T) (*TimingService, *fakeResetRepo) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	repo := &fakeResetRepo{}
	return NewTimingService(config.LoadConfig(), repo, logger), repo
}

func sampleAt(carID string, ts time.Time, speed, rawDistance float64) models.Sample {
	return models.Sample{
		CarID:        carID,
		Timestamp:    ts,
		SpeedKmh:     speed,
		RawDistanceM: rawDistance,
	}
}

func TestSubmitSampleFirstIsAccepted(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	point, err := s.SubmitSample(sampleAt("44", t0, 50, 1000))
	require.NoError(t, err)
	assert.Equal(t, float64(1000), point.DistanceM)
	assert.Equal(t, models.RecoveryNone, point.RecoveryMethod)
}

func TestSubmitSampleMonotonicOnSmallDrop(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	_, err := s.SubmitSample(sampleAt("44", t0, 50, 1000))
	require.NoError(t, err)

	// Падение на 1% ниже порога сброса, но дистанция не должна идти назад
	point, err := s.SubmitSample(sampleAt("44", t0.Add(time.Second), 50, 990))
	require.NoError(t, err)
	assert.Equal(t, float64(1000), point.DistanceM)
	assert.Equal(t, models.RecoveryNone, point.RecoveryMethod)
}

func TestSubmitSampleDropTriggersRecovery(t *testing.T) {
	s, repo := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	_, err := s.SubmitSample(sampleAt("44", t0, 50, 1000))
	require.NoError(t, err)

	// Сброс датчика: 1000 -> 150 за секунду
	point, err := s.SubmitSample(sampleAt("44", t0.Add(time.Second), 50, 150))
	require.NoError(t, err)
	assert.Equal(t, models.RecoverySpeedIntegration, point.RecoveryMethod)
	assert.InDelta(t, 1013.9, point.DistanceM, 0.1)

	// Событие сохранено в репозитории
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.events, 1)
	event := repo.events[0]
	assert.Equal(t, "44", event.CarID)
	assert.Equal(t, string(ClassificationDrop), event.ResetType)
	assert.Equal(t, string(models.RecoverySpeedIntegration), event.RecoveryMethod)
	assert.InDelta(t, 85, event.DropPercentage, 0.001)
}

func TestSubmitSampleRejectsInvalidGPS(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	sample := sampleAt("44", t0, 50, 1000)
	sample.GPS = &models.Coordinates{Lat: 95, Lon: 30}

	_, err := s.SubmitSample(sample)
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, models.RejectInvalidGPS, rejection.Reason)

	// Отклоненный сэмпл не создает машину
	_, err = s.GetCurrentState("44")
	assert.ErrorIs(t, err, ErrCarNotFound)
}

func TestGetCurrentStateUnknownCar(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.GetCurrentState("99")
	assert.ErrorIs(t, err, ErrCarNotFound)
}

func TestGetForecastInsufficientDataWithoutTarget(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	_, err := s.SubmitSample(sampleAt("44", t0, 50, 1000))
	require.NoError(t, err)

	_, err = s.GetForecast("44", "63")
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestGetForecastThroughService(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	_, err := s.SubmitSample(sampleAt("44", t0, 80, 500))
	require.NoError(t, err)
	_, err = s.SubmitSample(sampleAt("63", t0, 60, 800))
	require.NoError(t, err)

	forecast, err := s.GetForecast("44", "63")
	require.NoError(t, err)

	assert.Equal(t, models.ForecastCatchingUp, forecast.Status)
	assert.InDelta(t, 300, forecast.CurrentGapM, 0.001)
	require.NotNil(t, forecast.ETASeconds)
	assert.InDelta(t, 61, *forecast.ETASeconds, 0.01)
}

func TestGetRankingsOrderAndGaps(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	_, err := s.SubmitSample(sampleAt("A", t0, 70, 500))
	require.NoError(t, err)
	_, err = s.SubmitSample(sampleAt("B", t0, 70, 800))
	require.NoError(t, err)
	_, err = s.SubmitSample(sampleAt("C", t0, 70, 1000))
	require.NoError(t, err)

	rankings := s.GetRankings()
	require.Len(t, rankings.Rankings, 3)

	assert.Equal(t, "C", rankings.Rankings[0].CarID)
	assert.Equal(t, float64(0), rankings.Rankings[0].GapToLeaderM)
	assert.Equal(t, "B", rankings.Rankings[1].CarID)
	assert.Equal(t, float64(200), rankings.Rankings[1].GapToLeaderM)
	assert.Equal(t, "A", rankings.Rankings[2].CarID)
	assert.Equal(t, float64(500), rankings.Rankings[2].GapToLeaderM)
}

func TestGetAvailableTargetsNearestFirst(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	_, err := s.SubmitSample(sampleAt("A", t0, 70, 500))
	require.NoError(t, err)
	_, err = s.SubmitSample(sampleAt("B", t0, 70, 800))
	require.NoError(t, err)
	_, err = s.SubmitSample(sampleAt("C", t0, 70, 1000))
	require.NoError(t, err)

	targets, err := s.GetAvailableTargets("A")
	require.NoError(t, err)
	require.Len(t, targets.Targets, 2)

	assert.Equal(t, "B", targets.Targets[0].CarID)
	assert.InDelta(t, 300, targets.Targets[0].GapM, 0.001)
	assert.Equal(t, "C", targets.Targets[1].CarID)
	assert.InDelta(t, 500, targets.Targets[1].GapM, 0.001)

	// У лидера целей нет
	leaderTargets, err := s.GetAvailableTargets("C")
	require.NoError(t, err)
	assert.Empty(t, leaderTargets.Targets)
}

func TestGetResetStatusCountsRecoveries(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	_, err := s.SubmitSample(sampleAt("44", t0, 50, 1000))
	require.NoError(t, err)
	_, err = s.SubmitSample(sampleAt("44", t0.Add(time.Second), 50, 150))
	require.NoError(t, err)

	status := s.GetResetStatus()
	assert.Equal(t, int64(1), status.TotalResets)
	assert.Equal(t, int64(1), status.RecoveryStats[string(models.RecoverySpeedIntegration)])
	assert.Equal(t, 1, status.CarsMonitored)
	assert.Len(t, status.RecentEvents, 1)
}

func TestResetSessionClearsState(t *testing.T) {
	s, _ := newTestService(t)
	t0 := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	oldID := s.SessionID()

	_, err := s.SubmitSample(sampleAt("44", t0, 50, 1000))
	require.NoError(t, err)

	newID := s.ResetSession()
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, newID, s.SessionID())

	// Состояние машин обнулено вместе со статистикой
	_, err = s.GetCurrentState("44")
	assert.ErrorIs(t, err, ErrCarNotFound)
	assert.Equal(t, int64(0), s.GetResetStatus().TotalResets)
}

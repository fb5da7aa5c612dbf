package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/internal/geo"
	"race-telemetry-go/internal/model"
	"race-telemetry-go/internal/repository"
	"race-telemetry-go/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrCarNotFound машина не встречалась в текущей сессии
var ErrCarNotFound = errors.New("car not found")

// ErrInsufficientData для запрошенной машины нет накопленной истории
var ErrInsufficientData = errors.New("insufficient data")

// TimingService движок живого тайминга одной гоночной сессии.
// Владеет состоянием всех машин; один экземпляр на сессию,
// никакого глобального состояния.
type TimingService struct {
	cfg    *config.Config
	logger *logrus.Logger
	repo   repository.ResetEventRepository

	normalizer     *Normalizer
	detector       *ResetDetector
	recovery       *RecoverySelector
	forecaster     *Forecaster
	statusDetector *StatusDetector

	mu      sync.RWMutex // защищает карту машин и текущую сессию
	cars    map[string]*carState
	session *model.RaceSession

	statsMu       sync.Mutex
	recoveryStats map[models.RecoveryMethod]int64
	totalResets   int64
}

// NewTimingService создает движок тайминга и регистрирует новую сессию
func NewTimingService(cfg *config.Config, repo repository.ResetEventRepository, logger *logrus.Logger) *TimingService {
	geoCalc := geo.NewCalculator()

	s := &TimingService{
		cfg:            cfg,
		logger:         logger,
		repo:           repo,
		normalizer:     NewNormalizer(cfg, geoCalc),
		detector:       NewResetDetector(cfg),
		recovery:       NewRecoverySelector(cfg, geoCalc, logger),
		forecaster:     NewForecaster(cfg),
		statusDetector: NewStatusDetector(cfg),
		cars:           make(map[string]*carState),
		recoveryStats:  make(map[models.RecoveryMethod]int64),
	}

	s.session = s.newSession()
	return s
}

// newSession создает и сохраняет запись о новой гоночной сессии
func (s *TimingService) newSession() *model.RaceSession {
	session := &model.RaceSession{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Session %s", time.Now().Format("2006-01-02 15:04:05")),
		StartedAt: time.Now(),
	}

	if err := s.repo.CreateSession(session); err != nil {
		// Персистентность не должна блокировать тайминг
		s.logger.Warnf("Не удалось сохранить сессию %s в БД: %v", session.ID, err)
	} else {
		s.logger.Infof("Создана гоночная сессия %s", session.ID)
	}

	return session
}

// SessionID возвращает идентификатор текущей сессии
func (s *TimingService) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.ID
}

// SubmitSample принимает один сырой сэмпл: нормализация, классификация,
// при необходимости восстановление, затем добавление в историю машины.
// Возвращает принятую точку или RejectionError.
func (s *TimingService) SubmitSample(sample models.Sample) (*models.DistancePoint, error) {
	normalized, err := s.normalizer.Normalize(sample)
	if err != nil {
		s.logger.Debugf("Сэмпл машины %s отклонен нормализатором: %v", sample.CarID, err)
		return nil, err
	}

	st := s.getOrCreateCar(normalized.CarID)

	// Одна машина — один писатель: классификация и добавление атомарны
	st.mu.Lock()
	defer st.mu.Unlock()

	lastPt, hasLast := st.lastLocked()

	var lastRef *models.DistancePoint
	if hasLast {
		lastRef = &lastPt
	}

	classification := s.detector.Classify(lastRef, st.baselineLocked(), normalized.RawDistanceM, normalized.Timestamp)

	if classification == ClassificationNormal {
		distance := normalized.RawDistanceM
		if hasLast && distance < lastPt.DistanceM {
			// Небольшое уменьшение ниже порога сброса: дистанция не идет назад
			distance = lastPt.DistanceM
		}
		point := models.DistancePoint{
			DistanceM:      distance,
			SpeedKmh:       normalized.SpeedKmh,
			Timestamp:      normalized.Timestamp,
			GPS:            normalized.GPS,
			RecoveryMethod: models.RecoveryNone,
		}
		st.appendLocked(point)
		return &point, nil
	}

	s.logger.Warnf("Машина %s: обнаружено нарушение целостности дистанции (%s), сырое значение %.1f м при последнем %.1f м",
		normalized.CarID, classification, normalized.RawDistanceM, lastPt.DistanceM)

	window := time.Duration(s.cfg.Detection.HistoryWindowSeconds) * time.Second
	in := recoveryInput{
		last:    lastPt,
		history: st.windowLocked(normalized.Timestamp, window),
		sample:  normalized,
		elapsed: normalized.Timestamp.Sub(st.baselineLocked()).Seconds(),
	}

	point, err := s.recovery.Recover(in)
	if err != nil {
		// Восстановление исчерпано: дистанция не меняется, но базовая метка
		// времени сдвигается, чтобы будущие дельты считались от свежего момента
		st.advanceBaselineLocked(normalized.Timestamp)
		return nil, &RejectionError{Reason: models.RejectRecoveryFailed}
	}

	st.appendLocked(point)
	s.recordResetEvent(classification, lastPt, normalized, point)

	return &point, nil
}

// recordResetEvent обновляет счетчики восстановления и сохраняет событие в БД
func (s *TimingService) recordResetEvent(classification Classification, last models.DistancePoint, sample models.Sample, corrected models.DistancePoint) {
	s.statsMu.Lock()
	s.recoveryStats[corrected.RecoveryMethod]++
	s.totalResets++
	s.statsMu.Unlock()

	event := &model.ResetEvent{
		SessionID:          s.SessionID(),
		CarID:              sample.CarID,
		Timestamp:          sample.Timestamp,
		PrevDistanceM:      last.DistanceM,
		RawDistanceM:       sample.RawDistanceM,
		CorrectedDistanceM: corrected.DistanceM,
		DropPercentage:     DropPercentage(last.DistanceM, sample.RawDistanceM),
		ResetType:          string(classification),
		RecoveryMethod:     string(corrected.RecoveryMethod),
	}

	if err := s.repo.CreateEvent(event); err != nil {
		s.logger.Warnf("Не удалось сохранить событие сброса машины %s: %v", sample.CarID, err)
	}
}

// GetCurrentState возвращает последнюю принятую точку и статус машины
func (s *TimingService) GetCurrentState(carID string) (*CarStateResponse, error) {
	st, ok := s.getCar(carID)
	if !ok {
		return nil, ErrCarNotFound
	}

	st.mu.RLock()
	last, hasLast := st.lastLocked()
	snapshot := st.snapshotLocked()
	st.mu.RUnlock()

	if !hasLast {
		return nil, ErrInsufficientData
	}

	return &CarStateResponse{
		CarID:         carID,
		Status:        s.statusDetector.Determine(snapshot, last.Timestamp),
		Point:         last,
		HistoryPoints: len(snapshot),
	}, nil
}

// GetForecast строит прогноз обгона для пары (догоняющий, цель)
func (s *TimingService) GetForecast(chasingID, targetID string) (*models.ForecastResult, error) {
	chasingState, ok := s.getCar(chasingID)
	if !ok {
		return nil, ErrInsufficientData
	}
	targetState, ok := s.getCar(targetID)
	if !ok {
		return nil, ErrInsufficientData
	}

	chasingState.mu.RLock()
	chasing := chasingState.snapshotLocked()
	chasingState.mu.RUnlock()

	targetState.mu.RLock()
	target := targetState.snapshotLocked()
	targetState.mu.RUnlock()

	if len(chasing) == 0 || len(target) == 0 {
		return nil, ErrInsufficientData
	}

	// Момент запроса для replay-данных — самая свежая известная метка времени
	now := chasing[len(chasing)-1].Timestamp
	if t := target[len(target)-1].Timestamp; t.After(now) {
		now = t
	}

	result := s.forecaster.Forecast(chasing, target, now)
	return &result, nil
}

// GetRankings возвращает живой зачет: машины по убыванию дистанции
func (s *TimingService) GetRankings() RankingsResponse {
	type carSnapshot struct {
		carID    string
		last     models.DistancePoint
		snapshot []models.DistancePoint
	}

	s.mu.RLock()
	sessionID := s.session.ID
	states := make(map[string]*carState, len(s.cars))
	for id, st := range s.cars {
		states[id] = st
	}
	s.mu.RUnlock()

	var snapshots []carSnapshot
	for id, st := range states {
		st.mu.RLock()
		last, hasLast := st.lastLocked()
		snap := st.snapshotLocked()
		st.mu.RUnlock()
		if !hasLast {
			continue
		}
		snapshots = append(snapshots, carSnapshot{carID: id, last: last, snapshot: snap})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].last.DistanceM > snapshots[j].last.DistanceM
	})

	rankings := make([]RankingEntry, 0, len(snapshots))
	var leaderDistance float64
	for i, snap := range snapshots {
		if i == 0 {
			leaderDistance = snap.last.DistanceM
		}
		rankings = append(rankings, RankingEntry{
			Position:     i + 1,
			CarID:        snap.carID,
			DistanceM:    snap.last.DistanceM,
			SpeedKmh:     snap.last.SpeedKmh,
			Status:       s.statusDetector.Determine(snap.snapshot, snap.last.Timestamp),
			GapToLeaderM: leaderDistance - snap.last.DistanceM,
		})
	}

	return RankingsResponse{
		SessionID: sessionID,
		Rankings:  rankings,
		Total:     len(rankings),
	}
}

// GetAvailableTargets возвращает машины впереди указанной, ближайшая первой
func (s *TimingService) GetAvailableTargets(carID string) (*AvailableTargetsResponse, error) {
	if _, ok := s.getCar(carID); !ok {
		return nil, ErrCarNotFound
	}

	rankings := s.GetRankings()

	var ownDistance float64
	found := false
	for _, entry := range rankings.Rankings {
		if entry.CarID == carID {
			ownDistance = entry.DistanceM
			found = true
			break
		}
	}
	if !found {
		return nil, ErrInsufficientData
	}

	var targets []TargetInfo
	for _, entry := range rankings.Rankings {
		if entry.CarID == carID || entry.DistanceM <= ownDistance {
			continue
		}
		targets = append(targets, TargetInfo{
			CarID:     entry.CarID,
			Position:  entry.Position,
			DistanceM: entry.DistanceM,
			SpeedKmh:  entry.SpeedKmh,
			GapM:      entry.DistanceM - ownDistance,
		})
	}

	// Ближайшая цель первой
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].GapM < targets[j].GapM
	})

	return &AvailableTargetsResponse{
		CarID:   carID,
		Targets: targets,
		Total:   len(targets),
	}, nil
}

// GetResetStatus возвращает сводку мониторинга сбросов по сессии
func (s *TimingService) GetResetStatus() ResetStatusResponse {
	s.mu.RLock()
	sessionID := s.session.ID
	startedAt := s.session.StartedAt
	carsMonitored := len(s.cars)
	s.mu.RUnlock()

	s.statsMu.Lock()
	stats := make(map[string]int64, len(s.recoveryStats))
	for method, count := range s.recoveryStats {
		stats[string(method)] = count
	}
	totalResets := s.totalResets
	s.statsMu.Unlock()

	events, err := s.repo.ListBySession(sessionID, 10)
	if err != nil {
		s.logger.Warnf("Не удалось получить события сброса из БД: %v", err)
		events = nil
	}

	return ResetStatusResponse{
		SessionID:     sessionID,
		StartedAt:     startedAt,
		CarsMonitored: carsMonitored,
		TotalResets:   totalResets,
		RecoveryStats: stats,
		Thresholds: DetectionThresholds{
			DropThresholdPercent:     s.cfg.Detection.DropThresholdPercent,
			SpeedAnomalyThresholdKmh: s.cfg.Detection.SpeedAnomalyThresholdKmh,
			HistoryWindowSeconds:     s.cfg.Detection.HistoryWindowSeconds,
			MaxHistorySize:           s.cfg.Detection.MaxHistorySize,
		},
		RecentEvents: events,
	}
}

// GetCarResetStatus возвращает статус дистанции и события конкретной машины
func (s *TimingService) GetCarResetStatus(carID string) (*CarResetStatusResponse, error) {
	st, ok := s.getCar(carID)
	if !ok {
		return nil, ErrCarNotFound
	}

	st.mu.RLock()
	last, hasLast := st.lastLocked()
	count := st.count
	st.mu.RUnlock()

	resp := &CarResetStatusResponse{
		CarID:         carID,
		HistoryPoints: count,
	}
	if hasLast {
		ts := last.Timestamp
		resp.LastUpdate = &ts
		resp.DistanceM = last.DistanceM
	}

	events, err := s.repo.ListByCar(s.SessionID(), carID, 10)
	if err != nil {
		s.logger.Warnf("Не удалось получить события сброса машины %s: %v", carID, err)
	} else {
		resp.ResetEvents = events
	}

	return resp, nil
}

// ResetSession сбрасывает все состояние машин и открывает новую сессию.
// Возвращает идентификатор новой сессии.
func (s *TimingService) ResetSession() string {
	s.mu.Lock()
	old := s.session
	s.cars = make(map[string]*carState)
	s.session = s.newSession()
	newID := s.session.ID
	s.mu.Unlock()

	s.statsMu.Lock()
	old.TotalResets = int(s.totalResets)
	s.recoveryStats = make(map[models.RecoveryMethod]int64)
	s.totalResets = 0
	s.statsMu.Unlock()

	if err := s.repo.UpdateSession(old); err != nil {
		s.logger.Warnf("Не удалось обновить завершенную сессию %s: %v", old.ID, err)
	}

	s.logger.Infof("Сессия %s завершена, открыта сессия %s", old.ID, newID)
	return newID
}

// getCar возвращает состояние машины, если она уже встречалась
func (s *TimingService) getCar(carID string) (*carState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.cars[carID]
	return st, ok
}

// getOrCreateCar возвращает состояние машины, создавая его при первом сэмпле
func (s *TimingService) getOrCreateCar(carID string) *carState {
	s.mu.RLock()
	st, ok := s.cars[carID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.cars[carID]; ok {
		return st
	}

	st = newCarState(s.cfg.Detection.MaxHistorySize)
	s.cars[carID] = st
	s.session.CarsSeen = len(s.cars)
	s.logger.Infof("Зарегистрирована машина %s (всего машин: %d)", carID, len(s.cars))
	return st
}

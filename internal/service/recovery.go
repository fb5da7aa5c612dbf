package service

import (
	"errors"
	"sort"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/internal/geo"
	"race-telemetry-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// ErrRecoveryExhausted ни один метод восстановления не дал правдоподобной дистанции
var ErrRecoveryExhausted = errors.New("recovery exhausted")

// recoveryInput входные данные для одной попытки восстановления
type recoveryInput struct {
	last    models.DistancePoint   // последняя принятая точка
	history []models.DistancePoint // снимок недавней истории (хронологический порядок)
	sample  models.Sample          // подозрительный сэмпл
	elapsed float64                // секунды от базовой метки времени
}

// recoveryFunc одна стратегия восстановления: возвращает дистанцию и успех
type recoveryFunc func(in recoveryInput) (float64, bool)

// recoveryStrategy метод восстановления с приоритетом
type recoveryStrategy struct {
	method   models.RecoveryMethod
	priority int
	apply    recoveryFunc
}

// RecoverySelector перебирает методы восстановления строго в порядке
// убывания приоритета, первый успешный выигрывает.
// Порядок по умолчанию: интегрирование скорости > GPS > интерполяция > fallback.
type RecoverySelector struct {
	cfg        *config.Config
	geoCalc    *geo.Calculator
	logger     *logrus.Logger
	strategies []recoveryStrategy
}

// NewRecoverySelector создает селектор с приоритетами из конфигурации
func NewRecoverySelector(cfg *config.Config, geoCalc *geo.Calculator, logger *logrus.Logger) *RecoverySelector {
	s := &RecoverySelector{
		cfg:     cfg,
		geoCalc: geoCalc,
		logger:  logger,
	}

	s.strategies = []recoveryStrategy{
		{models.RecoverySpeedIntegration, cfg.Recovery.Priorities["speed_integration"], s.bySpeedIntegration},
		{models.RecoveryGPS, cfg.Recovery.Priorities["gps_recovery"], s.byGPS},
		{models.RecoveryInterpolation, cfg.Recovery.Priorities["linear_interpolation"], s.byInterpolation},
		{models.RecoveryFallback, cfg.Recovery.Priorities["fallback"], s.byFallback},
	}
	sort.SliceStable(s.strategies, func(i, j int) bool {
		return s.strategies[i].priority > s.strategies[j].priority
	})

	return s
}

// Recover возвращает скорректированную точку с отметкой использованного метода
// или ErrRecoveryExhausted, если состояния недостаточно ни для одного метода
func (s *RecoverySelector) Recover(in recoveryInput) (models.DistancePoint, error) {
	for _, strategy := range s.strategies {
		distance, ok := strategy.apply(in)
		if !ok {
			continue
		}

		// Принятая дистанция никогда не уменьшается
		if distance < in.last.DistanceM {
			distance = in.last.DistanceM
		}

		s.logger.Infof("Восстановление дистанции машины %s: метод %s, %.1f м (сырое значение %.1f м)",
			in.sample.CarID, strategy.method, distance, in.sample.RawDistanceM)

		return models.DistancePoint{
			DistanceM:      distance,
			SpeedKmh:       in.sample.SpeedKmh,
			Timestamp:      in.sample.Timestamp,
			GPS:            in.sample.GPS,
			RecoveryMethod: strategy.method,
		}, nil
	}

	s.logger.Warnf("Восстановление дистанции машины %s исчерпано, сэмпл отклонен", in.sample.CarID)
	return models.DistancePoint{}, ErrRecoveryExhausted
}

// bySpeedIntegration — метод 1: интегрирование скорости от последней хорошей точки.
// Берется среднее последней известной и текущей скорости; канал скорости
// считается надежным даже когда канал дистанции сбоит.
func (s *RecoverySelector) bySpeedIntegration(in recoveryInput) (float64, bool) {
	if in.elapsed <= 0 || in.elapsed > float64(s.cfg.Recovery.MaxIntegrationGapSeconds) {
		return 0, false
	}

	avgKmh := (in.last.SpeedKmh + in.sample.SpeedKmh) / 2
	if avgKmh < 0 || avgKmh > s.cfg.Detection.SpeedAnomalyThresholdKmh {
		return 0, false
	}

	return in.last.DistanceM + avgKmh/3.6*in.elapsed, true
}

// byGPS — метод 2: перемещение между последним хорошим GPS фиксом и текущим
func (s *RecoverySelector) byGPS(in recoveryInput) (float64, bool) {
	if in.sample.GPS == nil || in.last.GPS == nil {
		return 0, false
	}
	if !s.geoCalc.IsValidCoordinate(in.last.GPS.Lat, in.last.GPS.Lon) ||
		!s.geoCalc.IsValidCoordinate(in.sample.GPS.Lat, in.sample.GPS.Lon) {
		return 0, false
	}
	if in.elapsed <= 0 {
		return 0, false
	}

	displacement := s.geoCalc.DistanceMeters(*in.last.GPS, *in.sample.GPS)

	// Перемещение должно быть достижимо без аномальной скорости
	impliedKmh := displacement / in.elapsed * 3.6
	if impliedKmh > s.cfg.Detection.SpeedAnomalyThresholdKmh {
		return 0, false
	}

	return in.last.DistanceM + displacement, true
}

// byInterpolation — метод 3: средняя скорость по удержанному окну истории
func (s *RecoverySelector) byInterpolation(in recoveryInput) (float64, bool) {
	if len(in.history) == 0 {
		return 0, false
	}

	var sum float64
	for _, p := range in.history {
		sum += p.SpeedKmh
	}
	avgKmh := sum / float64(len(in.history))
	if avgKmh < 0 || avgKmh > s.cfg.Detection.SpeedAnomalyThresholdKmh {
		return 0, false
	}

	elapsed := in.elapsed
	if elapsed < 0 {
		elapsed = 0
	}

	return in.last.DistanceM + avgKmh/3.6*elapsed, true
}

// byFallback — метод 4: последняя известная хорошая дистанция без изменений.
// Прогресс на этом тике не начисляется.
func (s *RecoverySelector) byFallback(in recoveryInput) (float64, bool) {
	if len(in.history) == 0 {
		return 0, false
	}
	return in.last.DistanceM, true
}

package models

import "time"

// Coordinates представляет географические координаты
type Coordinates struct {
	Lat float64 `json:"lat"` // Широта
	Lon float64 `json:"lon"` // Долгота
}

// RecoveryMethod метод восстановления дистанции
type RecoveryMethod string

const (
	RecoveryNone             RecoveryMethod = "none"                 // Сэмпл принят без восстановления
	RecoverySpeedIntegration RecoveryMethod = "speed_integration"    // Интегрирование скорости от последней хорошей точки
	RecoveryGPS              RecoveryMethod = "gps_recovery"         // Восстановление по GPS координатам
	RecoveryInterpolation    RecoveryMethod = "linear_interpolation" // Линейная интерполяция по средней скорости
	RecoveryFallback         RecoveryMethod = "fallback"             // Последняя известная хорошая дистанция
)

// RejectionReason причина отклонения сэмпла нормализатором
type RejectionReason string

const (
	RejectInvalidGPS       RejectionReason = "invalid_gps"            // Координаты вне допустимого диапазона WGS84
	RejectSpeedOutOfRange  RejectionReason = "speed_out_of_range"     // Скорость отрицательная или грубо неправдоподобная
	RejectMissingField     RejectionReason = "missing_required_field" // Отсутствует обязательное поле
	RejectRecoveryFailed   RejectionReason = "recovery_exhausted"     // Ни один метод восстановления не сработал
)

// ForecastStatus сценарий прогноза обгона
type ForecastStatus string

const (
	ForecastAhead         ForecastStatus = "ahead"          // Догоняющая машина уже впереди
	ForecastCatchingUp    ForecastStatus = "catching_up"    // Догоняющая машина сокращает разрыв
	ForecastFallingBehind ForecastStatus = "falling_behind" // Догоняющая машина отстает
	ForecastStalled       ForecastStatus = "stalled"        // Скорости равны, разрыв не меняется
)

// CarStatus состояние машины по телеметрии
type CarStatus string

const (
	StatusRunning CarStatus = "RUNNING" // Машина едет в гоночном темпе
	StatusPit     CarStatus = "PIT"     // Машина движется медленно (пит-лейн)
	StatusStopped CarStatus = "STOPPED" // Машина стоит
	StatusOut     CarStatus = "OUT"     // Нет свежих данных, машина сошла
)

// Sample один сырой телеметрический сэмпл машины.
// RawDistanceM — накопленная дистанция, вычисленная внешним слоем
// (интегрирование пути из CSV или live-фида); именно она проверяется
// детектором сбросов.
type Sample struct {
	CarID        string       `json:"car_id"`
	Timestamp    time.Time    `json:"timestamp"`
	GPS          *Coordinates `json:"gps,omitempty"`
	X            *float64     `json:"x,omitempty"` // Локальные плоские координаты
	Y            *float64     `json:"y,omitempty"`
	SpeedKmh     float64      `json:"speed_kmh"`
	RawDistanceM float64      `json:"raw_distance_m"`
}

// DistancePoint одна принятая скорректированная точка дистанции.
// После добавления в историю машины точка не изменяется.
type DistancePoint struct {
	DistanceM      float64        `json:"distance_m"`
	SpeedKmh       float64        `json:"speed_kmh"`
	Timestamp      time.Time      `json:"timestamp"`
	GPS            *Coordinates   `json:"gps,omitempty"`
	RecoveryMethod RecoveryMethod `json:"recovery_method"`
}

// ForecastResult результат прогноза обгона для пары (догоняющий, цель).
// Вычисляется заново на каждый запрос и нигде не сохраняется.
type ForecastResult struct {
	Status             ForecastStatus `json:"status"`
	CurrentGapM        float64        `json:"current_gap_m"`
	ChasingSpeedKmh    float64        `json:"chasing_speed_kmh"`
	TargetSpeedKmh     float64        `json:"target_speed_kmh"`
	ClosingRateKmh     float64        `json:"closing_rate_kmh"`
	RequiredSpeedKmh   float64        `json:"required_speed_kmh,omitempty"`
	ETASeconds         *float64       `json:"eta_seconds"`
	DistanceAdvantageM float64        `json:"distance_advantage_m,omitempty"`
}

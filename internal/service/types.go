package service

import (
	"time"

	"race-telemetry-go/internal/model"
	"race-telemetry-go/pkg/models"
)

// SubmitResult результат приема одного сэмпла
type SubmitResult struct {
	Accepted bool                   `json:"accepted"`
	Reason   models.RejectionReason `json:"reason,omitempty"`
	Point    *models.DistancePoint  `json:"point,omitempty"`
}

// CarStateResponse текущее состояние машины
type CarStateResponse struct {
	CarID         string               `json:"car_id"`
	Status        models.CarStatus     `json:"status"`
	Point         models.DistancePoint `json:"point"`
	HistoryPoints int                  `json:"history_points"`
}

// RankingEntry строка живого зачета
type RankingEntry struct {
	Position     int              `json:"position"`
	CarID        string           `json:"car_id"`
	DistanceM    float64          `json:"distance_m"`
	SpeedKmh     float64          `json:"speed_kmh"`
	Status       models.CarStatus `json:"status"`
	GapToLeaderM float64          `json:"gap_to_leader_m"`
}

// RankingsResponse живой зачет сессии
type RankingsResponse struct {
	SessionID string         `json:"session_id"`
	Rankings  []RankingEntry `json:"rankings"`
	Total     int            `json:"total"`
}

// TargetInfo машина, идущая впереди догоняющего
type TargetInfo struct {
	CarID     string  `json:"car_id"`
	Position  int     `json:"position"`
	DistanceM float64 `json:"distance_m"`
	SpeedKmh  float64 `json:"speed_kmh"`
	GapM      float64 `json:"gap_m"`
}

// AvailableTargetsResponse список целей для обгона, ближайшая первой
type AvailableTargetsResponse struct {
	CarID   string       `json:"car_id"`
	Targets []TargetInfo `json:"targets"`
	Total   int          `json:"total"`
}

// DetectionThresholds активные пороги детектора для мониторинга
type DetectionThresholds struct {
	DropThresholdPercent     float64 `json:"drop_threshold_percent"`
	SpeedAnomalyThresholdKmh float64 `json:"speed_anomaly_threshold_kmh"`
	HistoryWindowSeconds     int     `json:"history_window_seconds"`
	MaxHistorySize           int     `json:"max_history_size"`
}

// ResetStatusResponse сводка мониторинга сбросов дистанции
type ResetStatusResponse struct {
	SessionID     string              `json:"session_id"`
	StartedAt     time.Time           `json:"started_at"`
	CarsMonitored int                 `json:"cars_monitored"`
	TotalResets   int64               `json:"total_resets"`
	RecoveryStats map[string]int64    `json:"recovery_stats"`
	Thresholds    DetectionThresholds `json:"thresholds"`
	RecentEvents  []*model.ResetEvent `json:"recent_events"`
}

// CarResetStatusResponse статус дистанции конкретной машины
type CarResetStatusResponse struct {
	CarID         string              `json:"car_id"`
	HistoryPoints int                 `json:"history_points"`
	LastUpdate    *time.Time          `json:"last_update,omitempty"`
	DistanceM     float64             `json:"distance_m"`
	ResetEvents   []*model.ResetEvent `json:"reset_events"`
}

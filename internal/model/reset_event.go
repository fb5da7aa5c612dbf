package model

import (
	"time"

	"gorm.io/gorm"
)

// RaceSession представляет гоночную сессию в базе данных.
// Одна сессия — один экземпляр движка тайминга.
type RaceSession struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	StartedAt time.Time `gorm:"not null" json:"started_at"`

	// Общая статистика по сессии
	CarsSeen    int `gorm:"not null;default:0" json:"cars_seen"`
	TotalResets int `gorm:"not null;default:0" json:"total_resets"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Связь с событиями сброса
	ResetEvents []ResetEvent `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"reset_events"`
}

// ResetEvent представляет одно обнаруженное событие сброса дистанции
// и результат его восстановления
type ResetEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(36);not null;index" json:"session_id"`
	CarID     string    `gorm:"type:varchar(64);not null;index" json:"car_id"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`

	PrevDistanceM      float64 `gorm:"not null" json:"prev_distance_m"`
	RawDistanceM       float64 `gorm:"not null" json:"raw_distance_m"`
	CorrectedDistanceM float64 `gorm:"not null" json:"corrected_distance_m"`
	DropPercentage     float64 `gorm:"not null;default:0" json:"drop_percentage"`
	ResetType          string  `gorm:"type:varchar(32);not null" json:"reset_type"`
	RecoveryMethod     string  `gorm:"type:varchar(32);not null" json:"recovery_method"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Обратная связь с сессией
	Session RaceSession `gorm:"foreignKey:SessionID;references:ID" json:"-"`
}

// TableName указывает имя таблицы для RaceSession
func (RaceSession) TableName() string {
	return "race_sessions"
}

// TableName указывает имя таблицы для ResetEvent
func (ResetEvent) TableName() string {
	return "reset_events"
}

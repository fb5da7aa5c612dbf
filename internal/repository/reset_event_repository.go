package repository

import (
	"fmt"

	"race-telemetry-go/internal/model"

	"gorm.io/gorm"
)

// ResetEventRepository интерфейс для работы с сессиями и событиями сброса
type ResetEventRepository interface {
	CreateSession(session *model.RaceSession) error
	UpdateSession(session *model.RaceSession) error
	CreateEvent(event *model.ResetEvent) error
	ListBySession(sessionID string, limit int) ([]*model.ResetEvent, error)
	ListByCar(sessionID, carID string, limit int) ([]*model.ResetEvent, error)
	CountByMethod(sessionID string) (map[string]int64, error)
}

// resetEventRepository реализация ResetEventRepository
type resetEventRepository struct {
	db *gorm.DB
}

// NewResetEventRepository создает новый instance ResetEventRepository
func NewResetEventRepository(db *gorm.DB) ResetEventRepository {
	return &resetEventRepository{
		db: db,
	}
}

// CreateSession создает новую гоночную сессию в базе данных
func (r *resetEventRepository) CreateSession(session *model.RaceSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create race session: %w", err)
	}
	return nil
}

// UpdateSession обновляет статистику сессии
func (r *resetEventRepository) UpdateSession(session *model.RaceSession) error {
	if err := r.db.Save(session).Error; err != nil {
		return fmt.Errorf("failed to update race session: %w", err)
	}
	return nil
}

// CreateEvent сохраняет одно событие сброса дистанции
func (r *resetEventRepository) CreateEvent(event *model.ResetEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("failed to create reset event: %w", err)
	}
	return nil
}

// ListBySession получает последние события сброса в рамках сессии
func (r *resetEventRepository) ListBySession(sessionID string, limit int) ([]*model.ResetEvent, error) {
	var events []*model.ResetEvent

	err := r.db.Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reset events: %w", err)
	}

	return events, nil
}

// ListByCar получает последние события сброса конкретной машины
func (r *resetEventRepository) ListByCar(sessionID, carID string, limit int) ([]*model.ResetEvent, error) {
	var events []*model.ResetEvent

	err := r.db.Where("session_id = ? AND car_id = ?", sessionID, carID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reset events for car %s: %w", carID, err)
	}

	return events, nil
}

// methodCount промежуточная строка агрегации по методам восстановления
type methodCount struct {
	RecoveryMethod string
	Count          int64
}

// CountByMethod подсчитывает события сброса по методу восстановления
func (r *resetEventRepository) CountByMethod(sessionID string) (map[string]int64, error) {
	var rows []methodCount

	err := r.db.Model(&model.ResetEvent{}).
		Select("recovery_method, count(*) as count").
		Where("session_id = ?", sessionID).
		Group("recovery_method").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count reset events by method: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.RecoveryMethod] = row.Count
	}

	return counts, nil
}

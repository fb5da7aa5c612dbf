package service

import (
	"sync"
	"time"

	"race-telemetry-go/pkg/models"
)

// carState владеет историей принятых точек одной машины.
// Кольцевой буфер фиксированной емкости: новые точки вытесняют самые старые.
// Дисциплина доступа: один писатель на машину, читатели получают снимок.
type carState struct {
	mu       sync.RWMutex
	points   []models.DistancePoint
	start    int
	count    int
	lastSeen time.Time // метка времени последнего обработанного сэмпла (включая отклоненные)
}

// newCarState создает состояние машины с заданной емкостью истории
func newCarState(capacity int) *carState {
	if capacity <= 0 {
		capacity = 1
	}
	return &carState{
		points: make([]models.DistancePoint, capacity),
	}
}

// appendLocked добавляет принятую точку. Вызывается под mu.Lock.
func (c *carState) appendLocked(point models.DistancePoint) {
	if c.count < len(c.points) {
		c.points[(c.start+c.count)%len(c.points)] = point
		c.count++
	} else {
		c.points[c.start] = point
		c.start = (c.start + 1) % len(c.points)
	}
	c.lastSeen = point.Timestamp
}

// lastLocked возвращает последнюю принятую точку. Вызывается под mu.Lock или mu.RLock.
func (c *carState) lastLocked() (models.DistancePoint, bool) {
	if c.count == 0 {
		return models.DistancePoint{}, false
	}
	return c.points[(c.start+c.count-1)%len(c.points)], true
}

// snapshotLocked возвращает копию истории в хронологическом порядке.
// Вызывается под mu.Lock или mu.RLock.
func (c *carState) snapshotLocked() []models.DistancePoint {
	out := make([]models.DistancePoint, 0, c.count)
	for i := 0; i < c.count; i++ {
		out = append(out, c.points[(c.start+i)%len(c.points)])
	}
	return out
}

// windowLocked возвращает точки не старше window от момента now.
// Вызывается под mu.Lock или mu.RLock.
func (c *carState) windowLocked(now time.Time, window time.Duration) []models.DistancePoint {
	cutoff := now.Add(-window)
	var out []models.DistancePoint
	for i := 0; i < c.count; i++ {
		p := c.points[(c.start+i)%len(c.points)]
		if !p.Timestamp.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// baselineLocked возвращает метку времени, от которой считается elapsed
// для следующего сэмпла. Вызывается под mu.Lock или mu.RLock.
func (c *carState) baselineLocked() time.Time {
	return c.lastSeen
}

// advanceBaselineLocked сдвигает базовую метку времени без добавления точки.
// Используется при исчерпании восстановления: дистанция не меняется,
// но будущие дельты считаются от свежего времени. Вызывается под mu.Lock.
func (c *carState) advanceBaselineLocked(ts time.Time) {
	c.lastSeen = ts
}

package service

import (
	"math"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/internal/geo"
	"race-telemetry-go/pkg/models"
)

// RejectionError ошибка отклонения сэмпла с указанием причины
type RejectionError struct {
	Reason models.RejectionReason
}

// Error возвращает причину отклонения
func (e *RejectionError) Error() string {
	return string(e.Reason)
}

// Normalizer проверяет и очищает один входящий сэмпл.
// Чистая функция: состояние машин не читается и не мутируется.
type Normalizer struct {
	cfg     *config.Config
	geoCalc *geo.Calculator
}

// NewNormalizer создает новый нормализатор сэмплов
func NewNormalizer(cfg *config.Config, geoCalc *geo.Calculator) *Normalizer {
	return &Normalizer{
		cfg:     cfg,
		geoCalc: geoCalc,
	}
}

// Normalize возвращает очищенный сэмпл или RejectionError.
// Политика:
//   - пустой car_id или нулевая метка времени — missing_required_field;
//   - координаты (0, 0) — отсутствие GPS фикса, сэмпл принимается без GPS;
//   - координаты вне диапазона WGS84 — invalid_gps;
//   - скорость чуть выше порога аномалии зажимается к порогу,
//     грубо неправдоподобная (фактор сверх порога) — speed_out_of_range.
func (n *Normalizer) Normalize(sample models.Sample) (models.Sample, error) {
	if sample.CarID == "" || sample.Timestamp.IsZero() {
		return sample, &RejectionError{Reason: models.RejectMissingField}
	}

	if sample.GPS != nil {
		if sample.GPS.Lat == 0 && sample.GPS.Lon == 0 {
			// Нулевые координаты — сенсор без фикса, а не позиция в Гвинейском заливе
			sample.GPS = nil
		} else if !n.geoCalc.InRange(sample.GPS.Lat, sample.GPS.Lon) {
			return sample, &RejectionError{Reason: models.RejectInvalidGPS}
		}
	}

	if math.IsNaN(sample.SpeedKmh) || sample.SpeedKmh < 0 {
		return sample, &RejectionError{Reason: models.RejectSpeedOutOfRange}
	}

	threshold := n.cfg.Detection.SpeedAnomalyThresholdKmh
	if sample.SpeedKmh > threshold*n.cfg.Detection.GrossSpeedFactor {
		return sample, &RejectionError{Reason: models.RejectSpeedOutOfRange}
	}
	if sample.SpeedKmh > threshold {
		// Небольшое превышение — зажимаем, а не отклоняем
		sample.SpeedKmh = threshold
	}

	if math.IsNaN(sample.RawDistanceM) || math.IsInf(sample.RawDistanceM, 0) {
		return sample, &RejectionError{Reason: models.RejectMissingField}
	}

	return sample, nil
}

package replay

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"race-telemetry-go/internal/config"
	"race-telemetry-go/internal/geo"
	"race-telemetry-go/internal/service"
	"race-telemetry-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// Loader воспроизводит записанную телеметрию из CSV файлов.
// Один файл — одна машина; сырая накопленная дистанция строится
// интегрированием пути (плоские x/y предпочтительнее, затем GPS,
// затем скорость на время).
type Loader struct {
	cfg           *config.Config
	logger        *logrus.Logger
	timingService *service.TimingService
	geoCalc       *geo.Calculator
}

// NewLoader создает новый загрузчик телеметрии
func NewLoader(cfg *config.Config, timingService *service.TimingService, logger *logrus.Logger) *Loader {
	return &Loader{
		cfg:           cfg,
		logger:        logger,
		timingService: timingService,
		geoCalc:       geo.NewCalculator(),
	}
}

// Поддерживаемые форматы меток времени в CSV
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

// Run загружает все CSV файлы из папки данных и прогоняет сэмплы через движок
// в хронологическом порядке
func (l *Loader) Run() error {
	samples, err := l.LoadDirectory(l.cfg.Replay.DataDir)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		l.logger.Warn("В папке данных не найдено ни одного сэмпла")
		return nil
	}

	l.logger.Infof("Начинаем воспроизведение %d сэмплов", len(samples))

	accepted, rejected := 0, 0
	for i, sample := range samples {
		if i > 0 && l.cfg.Replay.SpeedFactor > 0 {
			// Пауза пропорциональна реальному интервалу между сэмплами
			delta := sample.Timestamp.Sub(samples[i-1].Timestamp)
			if delta > 0 {
				time.Sleep(time.Duration(float64(delta) / l.cfg.Replay.SpeedFactor))
			}
		}

		if _, err := l.timingService.SubmitSample(sample); err != nil {
			rejected++
			l.logger.Debugf("Сэмпл машины %s отклонен при воспроизведении: %v", sample.CarID, err)
			continue
		}
		accepted++
	}

	l.logger.Infof("Воспроизведение завершено: принято %d, отклонено %d", accepted, rejected)
	return nil
}

// LoadDirectory читает все CSV файлы из папки и возвращает объединенный
// хронологически отсортированный поток сэмплов
func (l *Loader) LoadDirectory(dir string) ([]models.Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var all []models.Sample
	files := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		samples, err := l.loadFile(path)
		if err != nil {
			l.logger.Errorf("Ошибка загрузки файла %s: %v", entry.Name(), err)
			continue
		}

		l.logger.Infof("Загружен файл %s: %d сэмплов (машина %s)", entry.Name(), len(samples), carIDOf(samples))
		all = append(all, samples...)
		files++
	}

	l.logger.Infof("Найдено %d CSV файлов, всего %d сэмплов", files, len(all))

	// Сэмплы разных машин сливаются в один поток по времени
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	return all, nil
}

// loadFile читает один CSV файл телеметрии и строит сырую накопленную дистанцию
func (l *Loader) loadFile(path string) ([]models.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	tsIdx, ok := cols["timestamp"]
	if !ok {
		return nil, fmt.Errorf("csv file has no timeStamp column")
	}

	// Машина берется из колонки car, иначе из имени файла
	fallbackCarID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var samples []models.Sample
	var cumulative float64

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv rows: %w", err)
	}

	for _, row := range rows {
		ts, err := parseTime(row[tsIdx])
		if err != nil {
			continue // битая строка не должна ронять весь файл
		}

		sample := models.Sample{
			CarID:     fieldString(row, cols, "car", fallbackCarID),
			Timestamp: ts,
			SpeedKmh:  fieldFloat(row, cols, "speed"),
		}

		lat := fieldFloat(row, cols, "lat")
		lon := fieldFloat(row, cols, "lon")
		if l.geoCalc.IsValidCoordinate(lat, lon) {
			sample.GPS = &models.Coordinates{Lat: lat, Lon: lon}
		}

		if xi, ok := cols["x"]; ok && xi < len(row) && row[xi] != "" {
			if x, err := strconv.ParseFloat(row[xi], 64); err == nil {
				sample.X = &x
			}
		}
		if yi, ok := cols["y"]; ok && yi < len(row) && row[yi] != "" {
			if y, err := strconv.ParseFloat(row[yi], 64); err == nil {
				sample.Y = &y
			}
		}

		if len(samples) > 0 {
			cumulative += l.segmentMeters(samples[len(samples)-1], sample)
		}
		sample.RawDistanceM = cumulative

		samples = append(samples, sample)
	}

	return samples, nil
}

// segmentMeters вычисляет пройденное расстояние между двумя соседними сэмплами.
// Порядок предпочтения: плоские координаты, GPS, интегрирование скорости.
func (l *Loader) segmentMeters(prev, cur models.Sample) float64 {
	if prev.X != nil && prev.Y != nil && cur.X != nil && cur.Y != nil {
		return l.geoCalc.PlanarDistanceMeters(*prev.X, *prev.Y, *cur.X, *cur.Y)
	}
	if prev.GPS != nil && cur.GPS != nil {
		return l.geoCalc.DistanceMeters(*prev.GPS, *cur.GPS)
	}

	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return cur.SpeedKmh / 3.6 * elapsed
}

// parseTime пробует поддерживаемые форматы меток времени
func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

// fieldString возвращает строковое поле или значение по умолчанию
func fieldString(row []string, cols map[string]int, name, fallback string) string {
	if i, ok := cols[name]; ok && i < len(row) {
		if v := strings.TrimSpace(row[i]); v != "" {
			return v
		}
	}
	return fallback
}

// fieldFloat возвращает числовое поле (0 при отсутствии или ошибке)
func fieldFloat(row []string, cols map[string]int, name string) float64 {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
	if err != nil {
		return 0
	}
	return v
}

// carIDOf возвращает идентификатор машины первого сэмпла (для логов)
func carIDOf(samples []models.Sample) string {
	if len(samples) == 0 {
		return "?"
	}
	return samples[0].CarID
}

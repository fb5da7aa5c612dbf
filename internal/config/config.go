package config

import (
	"os"
	"strconv"
)

// Config структура конфигурации приложения
type Config struct {
	Server struct {
		Port        int
		Host        string
		Environment string
	}
	Detection struct {
		DropThresholdPercent     float64 // Процент падения дистанции для срабатывания детектора
		SpeedAnomalyThresholdKmh float64 // Нереалистичная скорость (км/ч)
		GrossSpeedFactor         float64 // Множитель порога, выше которого сэмпл отклоняется
		HistoryWindowSeconds     int     // Окно истории для анализа
		MaxHistorySize           int     // Максимум точек истории на машину
	}
	Recovery struct {
		MaxIntegrationGapSeconds int // Максимальный разрыв для интегрирования скорости
		Priorities               map[string]int
	}
	Forecast struct {
		TrendWindowSeconds      int     // Окно усреднения скорости для трендов
		HorizonSeconds          int     // Горизонт для расчета требуемой скорости
		OvertakingBufferSeconds float64 // Запас времени на сам маневр обгона
		StalledToleranceKmh     float64 // Допуск равенства скоростей
	}
	Status struct {
		StoppedSpeedThresholdKmh float64 // Ниже — машина стоит
		PitSpeedThresholdKmh     float64 // Ниже — вероятно пит-лейн
		DataTimeoutSeconds       int     // Нет данных дольше — машина OUT
		WindowSeconds            int     // Окно анализа статуса
	}
	Replay struct {
		DataDir     string  // Папка с CSV файлами телеметрии (пусто — replay выключен)
		SpeedFactor float64 // Скорость воспроизведения (1.0 = реальное время, 0 = без пауз)
	}
	Logging struct {
		Level string
	}
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() *Config {
	cfg := &Config{}

	// Конфигурация сервера
	cfg.Server.Port = getEnvInt("SERVER_PORT", 8080)
	cfg.Server.Host = getEnv("SERVER_HOST", "0.0.0.0")
	cfg.Server.Environment = getEnv("ENVIRONMENT", "development")

	// Пороги детектора сбросов дистанции
	cfg.Detection.DropThresholdPercent = getEnvFloat("DROP_THRESHOLD_PERCENT", 80)
	cfg.Detection.SpeedAnomalyThresholdKmh = getEnvFloat("SPEED_ANOMALY_THRESHOLD", 150)
	cfg.Detection.GrossSpeedFactor = getEnvFloat("GROSS_SPEED_FACTOR", 2.0)
	cfg.Detection.HistoryWindowSeconds = getEnvInt("HISTORY_WINDOW_SECONDS", 300)
	cfg.Detection.MaxHistorySize = getEnvInt("MAX_HISTORY_SIZE", 1000)

	// Восстановление: разрывы и приоритеты методов.
	// Больший приоритет пробуется раньше.
	cfg.Recovery.MaxIntegrationGapSeconds = getEnvInt("MAX_INTEGRATION_GAP_SECONDS", 60)
	cfg.Recovery.Priorities = map[string]int{
		"speed_integration":    getEnvInt("RECOVERY_PRIORITY_SPEED_INTEGRATION", 4),
		"gps_recovery":         getEnvInt("RECOVERY_PRIORITY_GPS_RECOVERY", 3),
		"linear_interpolation": getEnvInt("RECOVERY_PRIORITY_LINEAR_INTERPOLATION", 2),
		"fallback":             getEnvInt("RECOVERY_PRIORITY_FALLBACK", 1),
	}

	// Конфигурация прогнозирования обгонов
	cfg.Forecast.TrendWindowSeconds = getEnvInt("SPEED_TREND_WINDOW_SECONDS", 60)
	cfg.Forecast.HorizonSeconds = getEnvInt("FORECAST_HORIZON_SECONDS", 600)
	cfg.Forecast.OvertakingBufferSeconds = getEnvFloat("OVERTAKING_BUFFER_SECONDS", 7)
	cfg.Forecast.StalledToleranceKmh = getEnvFloat("STALLED_TOLERANCE_KMH", 0.5)

	// Определение статуса машины
	cfg.Status.StoppedSpeedThresholdKmh = getEnvFloat("STOPPED_SPEED_THRESHOLD", 5)
	cfg.Status.PitSpeedThresholdKmh = getEnvFloat("PIT_SPEED_THRESHOLD", 60)
	cfg.Status.DataTimeoutSeconds = getEnvInt("DATA_TIMEOUT_SECONDS", 60)
	cfg.Status.WindowSeconds = getEnvInt("STATUS_WINDOW_SECONDS", 30)

	// Воспроизведение CSV телеметрии
	cfg.Replay.DataDir = getEnv("REPLAY_DATA_DIR", "")
	cfg.Replay.SpeedFactor = getEnvFloat("REPLAY_SPEED_FACTOR", 0)

	// Конфигурация логирования
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	return cfg
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает int значение переменной окружения или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает float значение переменной окружения или возвращает значение по умолчанию
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

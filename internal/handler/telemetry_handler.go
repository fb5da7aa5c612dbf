package handler

import (
	"errors"
	"net/http"

	"race-telemetry-go/internal/service"
	"race-telemetry-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TelemetryHandler обрабатывает HTTP запросы движка тайминга
type TelemetryHandler struct {
	timingService *service.TimingService
	healthCheck   func() error
	logger        *logrus.Logger
}

// NewTelemetryHandler создает новый экземпляр TelemetryHandler
func NewTelemetryHandler(timingService *service.TimingService, healthCheck func() error, logger *logrus.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		timingService: timingService,
		healthCheck:   healthCheck,
		logger:        logger,
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *TelemetryHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/samples", h.SubmitSample)
		api.GET("/rankings", h.GetRankings)
		api.GET("/cars/:id/state", h.GetCarState)
		api.GET("/cars/:id/targets", h.GetAvailableTargets)
		api.GET("/cars/:id/resets", h.GetCarResetStatus)
		api.GET("/forecast/:chasing_id/:target_id", h.GetForecast)
		api.GET("/resets", h.GetResetStatus)
		api.POST("/session/reset", h.ResetSession)
		api.GET("/health", h.CheckHealth)
	}
}

// SubmitSample принимает один телеметрический сэмпл
func (h *TelemetryHandler) SubmitSample(c *gin.Context) {
	var sample models.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		h.logger.Errorf("Ошибка парсинга тела сэмпла: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат сэмпла"})
		return
	}

	point, err := h.timingService.SubmitSample(sample)
	if err != nil {
		var rejection *service.RejectionError
		if errors.As(err, &rejection) {
			c.JSON(http.StatusBadRequest, service.SubmitResult{
				Accepted: false,
				Reason:   rejection.Reason,
			})
			return
		}

		h.logger.Errorf("Ошибка обработки сэмпла: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка обработки сэмпла"})
		return
	}

	c.JSON(http.StatusOK, service.SubmitResult{
		Accepted: true,
		Point:    point,
	})
}

// GetRankings возвращает живой зачет сессии
func (h *TelemetryHandler) GetRankings(c *gin.Context) {
	c.JSON(http.StatusOK, h.timingService.GetRankings())
}

// GetCarState возвращает текущее состояние машины
func (h *TelemetryHandler) GetCarState(c *gin.Context) {
	carID := c.Param("id")

	state, err := h.timingService.GetCurrentState(carID)
	if err != nil {
		if errors.Is(err, service.ErrCarNotFound) || errors.Is(err, service.ErrInsufficientData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Машина не найдена"})
			return
		}
		h.logger.Errorf("Ошибка получения состояния машины %s: %v", carID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения состояния машины"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetAvailableTargets возвращает машины впереди указанной, ближайшая первой
func (h *TelemetryHandler) GetAvailableTargets(c *gin.Context) {
	carID := c.Param("id")

	targets, err := h.timingService.GetAvailableTargets(carID)
	if err != nil {
		if errors.Is(err, service.ErrCarNotFound) || errors.Is(err, service.ErrInsufficientData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Машина не найдена"})
			return
		}
		h.logger.Errorf("Ошибка получения целей для машины %s: %v", carID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения целей"})
		return
	}

	c.JSON(http.StatusOK, targets)
}

// GetForecast возвращает прогноз обгона для пары машин
func (h *TelemetryHandler) GetForecast(c *gin.Context) {
	chasingID := c.Param("chasing_id")
	targetID := c.Param("target_id")

	forecast, err := h.timingService.GetForecast(chasingID, targetID)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientData) {
			// Нет истории — нет прогноза; это не нулевой разрыв
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_data"})
			return
		}
		h.logger.Errorf("Ошибка прогноза %s -> %s: %v", chasingID, targetID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка построения прогноза"})
		return
	}

	c.JSON(http.StatusOK, forecast)
}

// GetResetStatus возвращает сводку мониторинга сбросов дистанции
func (h *TelemetryHandler) GetResetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.timingService.GetResetStatus())
}

// GetCarResetStatus возвращает статус дистанции конкретной машины
func (h *TelemetryHandler) GetCarResetStatus(c *gin.Context) {
	carID := c.Param("id")

	status, err := h.timingService.GetCarResetStatus(carID)
	if err != nil {
		if errors.Is(err, service.ErrCarNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Машина не найдена"})
			return
		}
		h.logger.Errorf("Ошибка получения статуса сбросов машины %s: %v", carID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения статуса"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// ResetSession сбрасывает состояние и открывает новую сессию
func (h *TelemetryHandler) ResetSession(c *gin.Context) {
	h.logger.Info("Получен запрос на сброс сессии")

	newID := h.timingService.ResetSession()
	c.JSON(http.StatusOK, gin.H{
		"message":    "Сессия сброшена",
		"session_id": newID,
	})
}

// CheckHealth проверяет состояние сервиса
func (h *TelemetryHandler) CheckHealth(c *gin.Context) {
	if h.healthCheck != nil {
		if err := h.healthCheck(); err != nil {
			h.logger.Errorf("Проверка здоровья не пройдена: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "База данных недоступна",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"session_id": h.timingService.SessionID(),
	})
}

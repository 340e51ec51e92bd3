package handler

import (
	"errors"
	"net/http"

	"keepsake-server/internal/engine"
	"keepsake-server/internal/models"
	"keepsake-server/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ProgressionHandler обрабатывает HTTP запросы к движку прогрессии.
type ProgressionHandler struct {
	service        service.SessionService
	logger         *zap.Logger
	debugEndpoints bool
	metrics        http.Handler
}

// NewProgressionHandler создает обработчик. metricsHandler может быть nil.
func NewProgressionHandler(s service.SessionService, logger *zap.Logger, debugEndpoints bool, metricsHandler http.Handler) *ProgressionHandler {
	return &ProgressionHandler{
		service:        s,
		logger:         logger.Named("ProgressionHandler"),
		debugEndpoints: debugEndpoints,
		metrics:        metricsHandler,
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *ProgressionHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}

	e.POST("/players", h.createPlayer)
	players := e.Group("/players/:playerId")
	{
		players.POST("/events", h.processEvent)
		players.POST("/interactions", h.validateInteraction)
		players.GET("/state", h.getState)
		players.GET("/owl", h.getOwl)
		players.GET("/hotspots/:hotspotId", h.getHotspot)
		players.GET("/clue", h.getClue)
		players.GET("/step", h.getStep)
		players.GET("/prophecy", h.getProphecy)
	}

	if h.debugEndpoints {
		debug := e.Group("/debug/players/:playerId")
		{
			debug.POST("/stars", h.debugAddStars)
			debug.POST("/items", h.debugUnlockItem)
			debug.POST("/reset", h.debugReset)
		}
		h.logger.Warn("Отладочные маршруты включены")
	}
}

// handleServiceError переводит доменные ошибки в HTTP статусы.
func handleServiceError(c echo.Context, err error) error {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrPlayerIDRequired),
		errors.Is(err, models.ErrUnknownEventType),
		errors.Is(err, models.ErrUnknownItem),
		errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, service.ErrServiceClosed):
		statusCode = http.StatusServiceUnavailable
		apiErr = APIError{Message: "Service is shutting down"}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	return c.JSON(statusCode, apiErr)
}

// bindAndValidate читает тело запроса и проверяет теги validate.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid field: " + verrs[0].Namespace()})
		}
		return c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
	}
	return nil
}

// logIfUnexpected логирует только ошибки, которые станут 5xx.
func (h *ProgressionHandler) logIfUnexpected(msg, playerID string, err error) {
	if errors.Is(err, models.ErrPlayerIDRequired) ||
		errors.Is(err, models.ErrUnknownEventType) ||
		errors.Is(err, models.ErrUnknownItem) ||
		errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrNotFound) {
		return
	}
	h.logger.Error(msg, zap.String("playerID", playerID), zap.Error(err))
}

// --- Обработчики HTTP --- //

func (h *ProgressionHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (h *ProgressionHandler) createPlayer(c echo.Context) error {
	playerID, state, err := h.service.CreatePlayer(c.Request().Context())
	if err != nil {
		h.logIfUnexpected("Error creating player", "", err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, createPlayerResponse{PlayerID: playerID, State: state})
}

func (h *ProgressionHandler) processEvent(c echo.Context) error {
	playerID := c.Param("playerId")
	var req processEventRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.service.ProcessEvent(c.Request().Context(), playerID, engine.Event{
		Type:    engine.EventType(req.Type),
		Payload: req.Payload,
	})
	if err != nil {
		h.logIfUnexpected("Error processing event", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ProgressionHandler) validateInteraction(c echo.Context) error {
	playerID := c.Param("playerId")
	var req interactionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	verdict, err := h.service.ValidateInteraction(c.Request().Context(), playerID, service.InteractionRequest{
		HotspotID: req.HotspotID,
		Samples:   req.samples(),
		Submit:    req.Submit,
	})
	if err != nil {
		h.logIfUnexpected("Error validating interaction", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, verdict)
}

func (h *ProgressionHandler) getState(c echo.Context) error {
	playerID := c.Param("playerId")
	state, err := h.service.State(c.Request().Context(), playerID)
	if err != nil {
		h.logIfUnexpected("Error getting state", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (h *ProgressionHandler) getOwl(c echo.Context) error {
	playerID := c.Param("playerId")
	owl, err := h.service.Owl(c.Request().Context(), playerID)
	if err != nil {
		h.logIfUnexpected("Error getting owl status", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, owl)
}

func (h *ProgressionHandler) getHotspot(c echo.Context) error {
	playerID := c.Param("playerId")
	hotspotID := c.Param("hotspotId")
	armed, err := h.service.HotspotArmed(c.Request().Context(), playerID, hotspotID)
	if err != nil {
		h.logIfUnexpected("Error getting hotspot", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, hotspotResponse{HotspotID: hotspotID, Armed: armed})
}

func (h *ProgressionHandler) getClue(c echo.Context) error {
	playerID := c.Param("playerId")
	clue, err := h.service.PendingClue(c.Request().Context(), playerID)
	if err != nil {
		h.logIfUnexpected("Error getting pending clue", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, clue)
}

func (h *ProgressionHandler) getStep(c echo.Context) error {
	playerID := c.Param("playerId")
	step, err := h.service.CurrentStep(c.Request().Context(), playerID)
	if err != nil {
		h.logIfUnexpected("Error getting current step", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, step)
}

func (h *ProgressionHandler) getProphecy(c echo.Context) error {
	playerID := c.Param("playerId")
	prophecy, err := h.service.Prophecy(c.Request().Context(), playerID)
	if err != nil {
		h.logIfUnexpected("Error getting prophecy", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, prophecy)
}

func (h *ProgressionHandler) debugAddStars(c echo.Context) error {
	playerID := c.Param("playerId")
	var req debugStarsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.service.DebugAddStars(c.Request().Context(), playerID, req.Amount)
	if err != nil {
		h.logIfUnexpected("Error adding debug stars", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ProgressionHandler) debugUnlockItem(c echo.Context) error {
	playerID := c.Param("playerId")
	var req debugItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	state, err := h.service.DebugUnlockItem(c.Request().Context(), playerID, req.ItemID)
	if err != nil {
		h.logIfUnexpected("Error unlocking debug item", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (h *ProgressionHandler) debugReset(c echo.Context) error {
	playerID := c.Param("playerId")
	res, err := h.service.DebugReset(c.Request().Context(), playerID)
	if err != nil {
		h.logIfUnexpected("Error resetting progression", playerID, err)
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

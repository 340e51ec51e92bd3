package handler

import (
	"keepsake-server/internal/engine"
	"keepsake-server/internal/interaction"
	"keepsake-server/internal/models"
)

// APIError - стандартный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// --- Запросы ---

// processEventRequest - тело POST /players/:playerId/events.
type processEventRequest struct {
	Type    string         `json:"type" validate:"required"`
	Payload engine.Payload `json:"payload"`
}

// pointerSampleDTO - одна точка записанного жеста.
type pointerSampleDTO struct {
	Kind string  `json:"kind" validate:"required,oneof=down move up cancel"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	AtMs int64   `json:"atMs" validate:"gte=0"`
}

// interactionRequest - тело POST /players/:playerId/interactions.
type interactionRequest struct {
	HotspotID string             `json:"hotspotId" validate:"required"`
	Samples   []pointerSampleDTO `json:"samples" validate:"required,min=1,max=2000,dive"`
	Submit    bool               `json:"submit"`
}

func (r interactionRequest) samples() []interaction.Sample {
	out := make([]interaction.Sample, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = interaction.Sample{Kind: interaction.PointerKind(s.Kind), X: s.X, Y: s.Y, AtMs: s.AtMs}
	}
	return out
}

type debugStarsRequest struct {
	Amount int `json:"amount" validate:"gte=0,lte=10000"`
}

type debugItemRequest struct {
	ItemID string `json:"itemId" validate:"required"`
}

// --- Ответы ---

type createPlayerResponse struct {
	PlayerID string                   `json:"playerId"`
	State    *models.ProgressionState `json:"state"`
}

type hotspotResponse struct {
	HotspotID string `json:"hotspotId"`
	Armed     bool   `json:"armed"`
}

type healthResponse struct {
	Status string `json:"status"`
}

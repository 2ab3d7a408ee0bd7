package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campuspush/fanout-engine/internal/domain"
)

const maxTokenLength = 512

// DeviceRegistry is the slice of the token repository the HTTP surface
// needs: register, inspect, and remove device tokens.
type DeviceRegistry interface {
	Upsert(ctx context.Context, token *domain.DeviceToken) error
	GetByToken(ctx context.Context, token string) (*domain.DeviceToken, error)
	Evict(ctx context.Context, token string) error
}

type DeviceHandler struct {
	registry DeviceRegistry
}

func NewDeviceHandler(registry DeviceRegistry) (*DeviceHandler, error) {
	if registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	return &DeviceHandler{registry: registry}, nil
}

func RegisterDeviceRoutes(router fiber.Router, registry DeviceRegistry) error {
	h, err := NewDeviceHandler(registry)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/devices", h.Register)
	v1.Get("/devices/:token", h.Get)
	v1.Delete("/devices/:token", h.Unregister)

	return nil
}

type registerDeviceRequest struct {
	Token  string  `json:"token"`
	UserID *string `json:"userId,omitempty"`
}

type deviceResponse struct {
	Token        string    `json:"token"`
	UserID       *string   `json:"userId,omitempty"`
	SuccessCount int64     `json:"successCount"`
	FailCount    int64     `json:"failCount"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

func (h *DeviceHandler) Register(c *fiber.Ctx) error {
	var req registerDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	tokenValue := strings.TrimSpace(req.Token)
	if tokenValue == "" {
		return toHTTPError(fmt.Errorf("%w: token is required", domain.ErrValidation))
	}
	if len(tokenValue) > maxTokenLength {
		return toHTTPError(fmt.Errorf("%w: token exceeds %d characters", domain.ErrValidation, maxTokenLength))
	}

	token := domain.DeviceToken{Token: tokenValue}
	if req.UserID != nil {
		userID := strings.TrimSpace(*req.UserID)
		if userID != "" {
			token.UserID = &userID
		}
	}

	if err := h.registry.Upsert(c.Context(), &token); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDeviceResponse(&token))
}

func (h *DeviceHandler) Get(c *fiber.Ctx) error {
	tokenValue := strings.TrimSpace(c.Params("token"))
	token, err := h.registry.GetByToken(c.Context(), tokenValue)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDeviceResponse(token))
}

func (h *DeviceHandler) Unregister(c *fiber.Ctx) error {
	tokenValue := strings.TrimSpace(c.Params("token"))
	if tokenValue == "" {
		return toHTTPError(fmt.Errorf("%w: token is required", domain.ErrValidation))
	}

	if err := h.registry.Evict(c.Context(), tokenValue); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func toDeviceResponse(token *domain.DeviceToken) deviceResponse {
	if token == nil {
		return deviceResponse{}
	}

	return deviceResponse{
		Token:        token.Token,
		UserID:       token.UserID,
		SuccessCount: token.SuccessCount,
		FailCount:    token.FailCount,
		CreatedAt:    token.CreatedAt,
		UpdatedAt:    token.UpdatedAt,
	}
}

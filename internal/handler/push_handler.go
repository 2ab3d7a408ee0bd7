package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/campuspush/fanout-engine/internal/domain"
)

const maxDelaySeconds = 30 * 24 * 60 * 60

type PushService interface {
	ScheduleDelayed(ctx context.Context, jobKey string, payload domain.Payload, selector domain.TargetSelector, delay time.Duration) (*domain.Job, error)
	CancelScheduled(ctx context.Context, jobKey string) error
	SendNow(ctx context.Context, jobKey string, payload domain.Payload, selector domain.TargetSelector) (*domain.Job, error)
	JobStatus(ctx context.Context, jobKey string) (*domain.Job, error)
}

type PushHandler struct {
	service PushService
}

func NewPushHandler(service PushService) (*PushHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("push service is required")
	}
	return &PushHandler{service: service}, nil
}

func RegisterPushRoutes(router fiber.Router, service PushService) error {
	h, err := NewPushHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/push/schedule", h.Schedule)
	v1.Post("/push/send-now", h.SendNow)
	v1.Post("/push/:jobKey/cancel", h.Cancel)
	v1.Get("/push/:jobKey", h.Status)

	return nil
}

type pushRequest struct {
	JobKey       string            `json:"jobKey"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	ImageURL     string            `json:"imageUrl,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Target       string            `json:"target"`
	DelaySeconds int64             `json:"delaySeconds,omitempty"`
}

type jobResponse struct {
	JobID     string            `json:"jobId"`
	JobKey    string            `json:"jobKey"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	ImageURL  string            `json:"imageUrl,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Target    string            `json:"target"`
	State     string            `json:"state"`
	NotBefore time.Time         `json:"notBefore"`
	CreatedAt time.Time         `json:"createdAt,omitempty"`
}

func (h *PushHandler) Schedule(c *fiber.Ctx) error {
	var req pushRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	payload, selector, err := requestToPayload(req)
	if err != nil {
		return toHTTPError(err)
	}
	if req.DelaySeconds < 0 || req.DelaySeconds > maxDelaySeconds {
		return toHTTPError(fmt.Errorf("%w: delaySeconds must be between 0 and %d", domain.ErrValidation, maxDelaySeconds))
	}

	job, err := h.service.ScheduleDelayed(
		c.Context(),
		strings.TrimSpace(req.JobKey),
		payload,
		selector,
		time.Duration(req.DelaySeconds)*time.Second,
	)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toJobResponse(job))
}

func (h *PushHandler) SendNow(c *fiber.Ctx) error {
	var req pushRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	payload, selector, err := requestToPayload(req)
	if err != nil {
		return toHTTPError(err)
	}

	job, err := h.service.SendNow(c.Context(), strings.TrimSpace(req.JobKey), payload, selector)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toJobResponse(job))
}

func (h *PushHandler) Cancel(c *fiber.Ctx) error {
	jobKey := strings.TrimSpace(c.Params("jobKey"))
	if err := h.service.CancelScheduled(c.Context(), jobKey); err != nil {
		return toHTTPError(err)
	}

	// Echo the actual job state: a cancel that raced a firing is a no-op
	// and the caller should see FIRED, not CANCELED.
	job, err := h.service.JobStatus(c.Context(), jobKey)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *PushHandler) Status(c *fiber.Ctx) error {
	jobKey := strings.TrimSpace(c.Params("jobKey"))
	job, err := h.service.JobStatus(c.Context(), jobKey)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func requestToPayload(req pushRequest) (domain.Payload, domain.TargetSelector, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		target = domain.SelectorAll.String()
	}
	selector, err := domain.ParseTargetSelectorFromString(target)
	if err != nil {
		return domain.Payload{}, "", err
	}

	payload := domain.Payload{
		Title:    strings.TrimSpace(req.Title),
		Body:     strings.TrimSpace(req.Body),
		ImageURL: strings.TrimSpace(req.ImageURL),
		Data:     req.Data,
	}
	if err := payload.Validate(); err != nil {
		return domain.Payload{}, "", err
	}

	return payload, selector, nil
}

func toJobResponse(job *domain.Job) jobResponse {
	if job == nil {
		return jobResponse{}
	}

	return jobResponse{
		JobID:     job.ID,
		JobKey:    job.JobKey,
		Title:     job.Payload.Title,
		Body:      job.Payload.Body,
		ImageURL:  job.Payload.ImageURL,
		Data:      job.Payload.Data,
		Target:    job.Selector.String(),
		State:     job.State.String(),
		NotBefore: job.NotBefore,
		CreatedAt: job.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}

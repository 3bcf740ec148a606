package transport

import (
	"context"
	"errors"
	"log/slog"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"

	"github.com/gofiber/fiber/v2"
)

const (
	messageSent     = "MESSAGE WAS SENT"
	processLaunched = "PROCESS LAUNCHED"
)

// Sender publishes single messages; *app.SendService implements it.
type Sender interface {
	SendTopic(ctx context.Context, body string) error
	SendQueue(ctx context.Context, body string) error
}

// BulkTrigger schedules a batch send; *app.BulkDispatcher implements it.
type BulkTrigger interface {
	TriggerBulkSend(ctx context.Context, src ports.BatchSource) error
}

// Handler holds the writer-side HTTP handlers.
type Handler struct {
	sender Sender
	bulk   BulkTrigger
	source ports.BatchSource
	log    *slog.Logger
}

// NewHandler wires up a Handler with its dependencies. source is what
// /sendFromFile reads on every call.
func NewHandler(sender Sender, bulk BulkTrigger, source ports.BatchSource, log *slog.Logger) *Handler {
	return &Handler{sender: sender, bulk: bulk, source: source, log: log}
}

// Register mounts the writer routes onto the given Fiber router.
func (h *Handler) Register(router fiber.Router) {
	router.Post("/sendTopic", h.SendTopic)
	router.Post("/sendQueue", h.SendQueue)
	router.Get("/sendFromFile", h.SendFromFile)
}

// SendTopic publishes the raw request body to the topic.
//
// POST /sendTopic
func (h *Handler) SendTopic(c *fiber.Ctx) error {
	return h.send(c, h.sender.SendTopic)
}

// SendQueue publishes the raw request body to the queue.
//
// POST /sendQueue
func (h *Handler) SendQueue(c *fiber.Ctx) error {
	return h.send(c, h.sender.SendQueue)
}

func (h *Handler) send(c *fiber.Ctx, fn func(context.Context, string) error) error {
	// Body() aliases the request buffer, which fasthttp reuses.
	body := string(c.Body())
	if err := fn(c.Context(), body); err != nil {
		h.log.Error("send", "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	}
	return c.SendString(messageSent)
}

// SendFromFile launches a bulk send of the configured batch source and
// returns without waiting for it.
//
// GET /sendFromFile
func (h *Handler) SendFromFile(c *fiber.Ctx) error {
	err := h.bulk.TriggerBulkSend(c.Context(), h.source)
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).SendString(processLaunched)
	case errors.Is(err, domain.ErrPoolSaturated), errors.Is(err, domain.ErrPoolStopped):
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).SendString(err.Error())
	default:
		h.log.Error("bulk send", "source", h.source.Name(), "err", err)
		return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	}
}

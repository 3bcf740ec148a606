package transport

import (
	"log/slog"
	"time"

	"golang-mq-relay/internal/ports"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultObservationLimit = 50
	maxObservationLimit     = 500
)

// ReaderHandler serves the reader's status endpoints.
type ReaderHandler struct {
	listeners func() []ports.Listener
	journal   ports.ObservationJournal
	log       *slog.Logger
}

// NewReaderHandler accepts a nil journal; /observations then answers 404.
func NewReaderHandler(listeners func() []ports.Listener, journal ports.ObservationJournal, log *slog.Logger) *ReaderHandler {
	return &ReaderHandler{listeners: listeners, journal: journal, log: log}
}

func (h *ReaderHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/observations", h.Observations)
}

// Health reports every listener's state. Any listener that is not
// listening makes the reader unhealthy.
//
// GET /health
func (h *ReaderHandler) Health(c *fiber.Ctx) error {
	states := make(map[string]string)
	healthy := true
	for _, l := range h.listeners() {
		st := l.State()
		states[l.Destination().String()] = st.String()
		if st != ports.ListenerListening {
			healthy = false
		}
	}

	if !healthy || len(states) == 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "listeners": states})
	}
	return c.JSON(fiber.Map{"status": "healthy", "listeners": states})
}

type observationResponse struct {
	ID               string    `json:"id"`
	Destination      string    `json:"destination"`
	CorrelationToken string    `json:"correlation_token,omitempty"`
	Payload          string    `json:"payload"`
	ReceivedAt       time.Time `json:"received_at"`
}

// Observations lists the newest journal entries.
//
// GET /observations?limit=N
func (h *ReaderHandler) Observations(c *fiber.Ctx) error {
	if h.journal == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "journal not configured"})
	}

	limit := c.QueryInt("limit", defaultObservationLimit)
	if limit < 1 || limit > maxObservationLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 500"})
	}

	obs, err := h.journal.Recent(c.Context(), limit)
	if err != nil {
		h.log.Error("list observations", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	out := make([]observationResponse, 0, len(obs))
	for _, o := range obs {
		out = append(out, observationResponse{
			ID:               o.ID.String(),
			Destination:      o.Destination,
			CorrelationToken: o.CorrelationToken,
			Payload:          o.Payload,
			ReceivedAt:       o.ReceivedAt,
		})
	}
	return c.JSON(out)
}

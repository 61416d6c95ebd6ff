package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"toolwatch/internal/ingest"
	"toolwatch/internal/model"
	"toolwatch/pkg/apierror"
	"toolwatch/pkg/response"

	"go.uber.org/zap"
)

// TickQueue accepts producer ticks. *ingest.Pump implements it.
type TickQueue interface {
	Enqueue(t model.Tick, src ingest.Source) error
	EnqueueBatch(ticks []model.Tick, src ingest.Source) (int, error)
}

// TickHandler is the HTTP transport for sensor producers.
type TickHandler struct {
	queue        TickQueue
	maxBodyBytes int64
	maxBatch     int
	logger       *zap.Logger
}

// NewTickHandler creates a tick handler.
func NewTickHandler(queue TickQueue, maxBodyBytes int64, maxBatch int, logger *zap.Logger) *TickHandler {
	return &TickHandler{
		queue:        queue,
		maxBodyBytes: maxBodyBytes,
		maxBatch:     maxBatch,
		logger:       logger.Named("ticks"),
	}
}

// Ingest handles POST /api/v1/ticks
func (h *TickHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		response.Error(w, err)
		return
	}

	tick, err := ingest.DecodeTick(body)
	if err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}
	if err := h.queue.Enqueue(tick, ingest.SourceHTTP); err != nil {
		response.Error(w, queueError(err))
		return
	}
	response.Accepted(w, map[string]int{"accepted": 1})
}

// IngestBatch handles POST /api/v1/ticks/batch. Ticks are applied in body
// order. On a full queue the accepted prefix stays queued.
func (h *TickHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		response.Error(w, err)
		return
	}

	ticks, err := ingest.DecodeTicks(body)
	if err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}
	if h.maxBatch > 0 && len(ticks) > h.maxBatch {
		response.Error(w, apierror.PayloadTooLarge("batch exceeds "+strconv.Itoa(h.maxBatch)+" ticks"))
		return
	}

	n, err := h.queue.EnqueueBatch(ticks, ingest.SourceHTTP)
	if err != nil {
		h.logger.Warn("batch partially accepted",
			zap.Int("accepted", n),
			zap.Int("total", len(ticks)),
			zap.Error(err),
		)
		apiErr := queueError(err)
		apiErr.Message += " (" + strconv.Itoa(n) + " of " + strconv.Itoa(len(ticks)) + " accepted)"
		response.Error(w, apiErr)
		return
	}
	response.Accepted(w, map[string]int{"accepted": n})
}

func (h *TickHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierror.PayloadTooLarge("")
		}
		return nil, apierror.BadRequest("failed to read request body")
	}
	return body, nil
}

func queueError(err error) *apierror.Error {
	switch {
	case errors.Is(err, ingest.ErrQueueFull):
		return apierror.TooManyRequests("tick queue full")
	case errors.Is(err, ingest.ErrClosed):
		return apierror.ServiceUnavailable("shutting down")
	default:
		return apierror.InternalError("")
	}
}

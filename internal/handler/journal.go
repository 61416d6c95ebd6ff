package handler

import (
	"context"
	"errors"
	"net/http"

	"toolwatch/internal/model"
	"toolwatch/internal/service"
	"toolwatch/pkg/apierror"
	"toolwatch/pkg/response"

	"go.uber.org/zap"
)

// JournalReader reads back the durable event journal.
type JournalReader interface {
	ListEvents(ctx context.Context, limit int) ([]model.Event, error)
}

// JournalHandler serves the durable journal.
type JournalHandler struct {
	journal JournalReader
	logger  *zap.Logger
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(journal JournalReader, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, logger: logger.Named("journal")}
}

// ListEvents handles GET /api/v1/journal
func (h *JournalHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if limit == 0 {
		limit = MaxListLimit
	}

	events, err := h.journal.ListEvents(r.Context(), limit)
	if errors.Is(err, service.ErrJournalDisabled) {
		response.Error(w, apierror.ServiceUnavailable("journal disabled"))
		return
	}
	if err != nil {
		h.logger.Error("journal read failed", zap.Error(err))
		response.Error(w, apierror.InternalError("journal read failed"))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	response.List(w, events, limit, len(events))
}

package sync

import (
	"context"
	"net/http"

	"salepoint/internal/domain/sync"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

type Handler struct {
	service    sync.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service sync.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.batchOp(), h.batch)
	huma.Register(api, h.changesOp(), h.changes)
}

func (h *Handler) batch(ctx context.Context, input *batchInput) (*batchOutput, error) {
	response, err := h.service.ProcessBatch(ctx, input.Body)
	if err != nil {
		h.log.Error("batch processing failed", "items", len(input.Body.Items), "error", err)
		return &batchOutput{
			Status: http.StatusInternalServerError,
			Body:   sync.BatchResponse{Status: "Error", Error: err.Error()},
		}, nil
	}

	return &batchOutput{Status: http.StatusOK, Body: *response}, nil
}

func (h *Handler) changes(ctx context.Context, input *changesInput) (*changesOutput, error) {
	response, err := h.service.GetChanges(ctx, sync.GetChangesRequest{
		Domain: input.Domain,
		Since:  input.Since,
		Limit:  input.Limit,
	})
	if err != nil {
		h.log.Error("get changes failed", "domain", input.Domain, "error", err)
		return &changesOutput{
			Status: http.StatusBadRequest,
			Body:   sync.GetChangesResponse{Status: "Error", Error: err.Error()},
		}, nil
	}

	return &changesOutput{Status: http.StatusOK, Body: *response}, nil
}

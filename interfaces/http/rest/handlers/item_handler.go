package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/common"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/utils"
)

// ItemHandler handles reads and writes of single models by global id
type ItemHandler struct {
	*QueryHandler
}

// NewItemHandler creates a new item handler
func NewItemHandler(graph GraphService, errs *apperrors.ErrorHandler, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{QueryHandler: NewQueryHandler(graph, errs, logger)}
}

// GetNode handles GET /nodes/{id}
func (h *ItemHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.errs.Handle(w, r, apperrors.NewValidationError("id is required"))
		return
	}

	m, err := h.graph.Get(r.Context(), id)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, r, http.StatusOK, NodeResponse{ID: &id, Node: m})
}

// PutItems handles POST /items
func (h *ItemHandler) PutItems(w http.ResponseWriter, r *http.Request) {
	var req PutItemsRequest
	if err := common.ParseJSONBody(w, r, &req); err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError("Validation error: "+err.Error()))
		return
	}

	models := make([]entities.Model, 0, len(req.Items))
	resp := PutItemsResponse{IDs: make([]string, 0, len(req.Items))}
	for _, raw := range req.Items {
		m := toModel(raw)
		if err := m.Validate(); err != nil {
			h.errs.Handle(w, r, apperrors.NewValidationError(err.Error()))
			return
		}
		id, err := h.graph.ID(m)
		if err != nil {
			h.errs.Handle(w, r, err)
			return
		}
		models = append(models, m)
		resp.IDs = append(resp.IDs, id)
	}

	if err := h.graph.Put(r.Context(), models...); err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	h.logger.Info("Items written", zap.Int("count", len(models)))
	common.RespondJSON(w, r, http.StatusOK, resp)
}

// DeleteItem handles DELETE /items/{id}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.errs.Handle(w, r, apperrors.NewValidationError("id is required"))
		return
	}

	if err := h.graph.Delete(r.Context(), id); err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/application/resolvers"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/common"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/utils"
)

// GraphService is the part of the graph the HTTP API uses.
type GraphService interface {
	Resolve(ctx context.Context, q queries.Query) (*resolvers.Result, error)
	Get(ctx context.Context, id string) (entities.Model, error)
	Put(ctx context.Context, models ...entities.Model) error
	Delete(ctx context.Context, ids ...string) error
	ID(m entities.Model) (string, error)
}

var _ GraphService = (*resolvers.Graph)(nil)

// QueryHandler handles traversal queries
type QueryHandler struct {
	graph  GraphService
	errs   *apperrors.ErrorHandler
	logger *zap.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(graph GraphService, errs *apperrors.ErrorHandler, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		graph:  graph,
		errs:   errs,
		logger: logger,
	}
}

// Query handles POST /query. The response data is a connection, or a node
// when the chain ends in a single reduction.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := common.ParseJSONBody(w, r, &req); err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError("Validation error: "+err.Error()))
		return
	}

	builder, err := req.ToBuilder()
	if err != nil {
		h.errs.Handle(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	result, err := h.graph.Resolve(r.Context(), builder.Query())
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}

	if result.IsSingle {
		resp, err := h.nodeResponse(result.Node)
		if err != nil {
			h.errs.Handle(w, r, err)
			return
		}
		common.RespondJSON(w, r, http.StatusOK, resp)
		return
	}

	resp := ConnectionResponse{
		Edges:    make([]EdgeResponse, 0, len(result.Connection.Edges)),
		PageInfo: result.Connection.PageInfo,
	}
	for _, edge := range result.Connection.Edges {
		id, err := h.idOf(edge.Node)
		if err != nil {
			h.errs.Handle(w, r, err)
			return
		}
		resp.Edges = append(resp.Edges, EdgeResponse{Cursor: edge.Cursor, ID: id, Node: edge.Node})
	}

	h.logger.Debug("Query resolved",
		zap.Int("edges", len(resp.Edges)),
		zap.Bool("hasNextPage", resp.PageInfo.HasNextPage),
	)
	common.RespondJSON(w, r, http.StatusOK, resp)
}

func (h *QueryHandler) nodeResponse(m entities.Model) (NodeResponse, error) {
	id, err := h.idOf(m)
	if err != nil {
		return NodeResponse{}, err
	}
	return NodeResponse{ID: id, Node: m}, nil
}

func (h *QueryHandler) idOf(m entities.Model) (*string, error) {
	if m == nil {
		return nil, nil
	}
	id, err := h.graph.ID(m)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/api/transport"
	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/internal/enrich"
	"github.com/opencdp/profile-engine/pkg/httpcontext"
	trackUC "github.com/opencdp/profile-engine/usecase/track"
)

type TrackHandler struct {
	baseHandler
	uc       *trackUC.UseCase
	pipeline *enrich.Pipeline
}

func NewTrackHandler(uc *trackUC.UseCase, pipeline *enrich.Pipeline, adapter *httpcontext.Adapter, logger *zap.Logger) *TrackHandler {
	return &TrackHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		pipeline:    pipeline,
	}
}

// @Summary Ingest one identity event
// @Tags profiles
// @Accept json
// @Produce json
// @Router /api/v1/profiles/track [post]
func (h *TrackHandler) Track(ctx *fasthttp.RequestCtx) {
	var req transport.TrackRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}

	event := req.Event()
	if h.pipeline != nil {
		if err := h.pipeline.Validate(event); err != nil {
			h.respondError(ctx, err)
			return
		}
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.uc.ProcessIdentity(stdCtx, event)
	if err != nil {
		h.respondError(ctx, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == domain.OutcomeCreated {
		status = http.StatusCreated
	}
	h.respondSuccess(ctx, status, result)
}

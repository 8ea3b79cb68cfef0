package handler

import (
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/api/transport"
	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/pkg/httpcontext"
	mergeUC "github.com/opencdp/profile-engine/usecase/merge"
)

type MergeHandler struct {
	baseHandler
	uc *mergeUC.UseCase
}

func NewMergeHandler(uc *mergeUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *MergeHandler {
	return &MergeHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Run duplicate detection and merge for a tenant
// @Tags merge
// @Accept json
// @Produce json
// @Router /api/v1/merge/auto [post]
func (h *MergeHandler) AutoMerge(ctx *fasthttp.RequestCtx) {
	var req transport.AutoMergeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}
	if req.TenantID == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "tenant_id is required", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	report, err := h.uc.AutoMerge(stdCtx, req.TenantID, req.Strategy, req.DryRun, req.MaxGroups)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, report)
}

// @Summary Merge an explicit set of profiles
// @Tags merge
// @Accept json
// @Produce json
// @Router /api/v1/merge/manual [post]
func (h *MergeHandler) ManualMerge(ctx *fasthttp.RequestCtx) {
	var req transport.ManualMergeRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}
	if req.TenantID == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "tenant_id is required", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	master, err := h.uc.ManualMerge(stdCtx, req.TenantID, req.ProfileIDs, req.Force, req.KeepOriginals)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, master)
}

// @Summary Get a master profile
// @Tags merge
// @Produce json
// @Router /api/v1/masters/{tenant}/{id} [get]
func (h *MergeHandler) GetMaster(ctx *fasthttp.RequestCtx) {
	tenantID, _ := ctx.UserValue("tenant").(string)
	masterID, _ := ctx.UserValue("id").(string)
	if tenantID == "" || masterID == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "tenant and id are required", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	master, err := h.uc.GetMaster(stdCtx, tenantID, masterID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, master)
}

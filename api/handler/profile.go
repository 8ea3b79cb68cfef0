package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/api/transport"
	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/pkg/httpcontext"
	profileUC "github.com/opencdp/profile-engine/usecase/profile"
)

type ProfileHandler struct {
	baseHandler
	uc *profileUC.UseCase
}

func NewProfileHandler(uc *profileUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

func identityTriple(ctx *fasthttp.RequestCtx) (tenantID, appID, userID string, ok bool) {
	tenantID, _ = ctx.UserValue("tenant").(string)
	appID, _ = ctx.UserValue("app").(string)
	userID, _ = ctx.UserValue("user").(string)
	ok = tenantID != "" && appID != "" && userID != ""
	return
}

// @Summary Resolve an identity triple to its profile
// @Tags profiles
// @Produce json
// @Router /api/v1/profiles/{tenant}/{app}/{user} [get]
func (h *ProfileHandler) GetProfile(ctx *fasthttp.RequestCtx) {
	tenantID, appID, userID, ok := identityTriple(ctx)
	if !ok {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "tenant, app and user are required", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	profile, err := h.uc.Get(stdCtx, tenantID, appID, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, profile)
}

// @Summary Delete one identity alias
// @Tags profiles
// @Produce json
// @Router /api/v1/profiles/{tenant}/{app}/{user} [delete]
func (h *ProfileHandler) DeleteIdentity(ctx *fasthttp.RequestCtx) {
	tenantID, appID, userID, ok := identityTriple(ctx)
	if !ok {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "tenant, app and user are required", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.uc.Delete(stdCtx, tenantID, appID, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}

package handler

import (
	"net/http"

	"github.com/serendip/gatekeeper/internal/api/metrics"
	"github.com/serendip/gatekeeper/internal/api/middleware"
	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/api/route"
	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

// RestrictionController lets admins inspect and edit restriction rules.
type RestrictionController struct {
	rules ports.RestrictionService
	v     *Validator
}

func NewRestrictionController(rules ports.RestrictionService, v *Validator) *RestrictionController {
	return &RestrictionController{rules: rules, v: v}
}

// Controller declares the endpoints served under /api/restriction.
func (h *RestrictionController) Controller() route.Controller {
	admin := middleware.RequireAdmin()
	return route.Controller{
		Name: "RestrictionController",
		Endpoints: []route.Endpoint{
			{Name: "list", Method: http.MethodGet, Stages: stages(admin, h.list)},
			{Name: "upsert", Method: http.MethodPost, Stages: stages(admin, decode[ruleRequest](h.v), h.upsert)},
			{Name: "remove", Method: http.MethodPost, Stages: stages(admin, decode[ruleKeyRequest](h.v), h.remove)},
			{Name: "refresh", Method: http.MethodPost, Stages: stages(admin, h.refresh)},
		},
	}
}

// list
//
// @Summary      List restriction rules
// @Tags         restriction
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.RestrictionRule
// @Failure      403  {object}  errorResponse
// @Router       /restriction/list [get]
func (h *RestrictionController) list(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	next(h.rules.Rules())
}

// upsert stores a rule, replacing the one with the same scope.
//
// @Summary      Create or replace a restriction rule
// @Tags         restriction
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      ruleRequest  true  "Rule"
// @Success      200   {array}   domain.RestrictionRule
// @Failure      403   {object}  errorResponse
// @Router       /restriction/upsert [post]
func (h *RestrictionController) upsert(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*ruleRequest)

	if err := h.rules.Upsert(c.Ctx(), req.toDomain()); err != nil {
		next(err)
		return
	}
	next(h.snapshot())
}

// remove
//
// @Summary      Delete a restriction rule
// @Tags         restriction
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      ruleKeyRequest  true  "Rule scope"
// @Success      200   {array}   domain.RestrictionRule
// @Failure      404   {object}  errorResponse
// @Router       /restriction/remove [post]
func (h *RestrictionController) remove(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	req := c.Value().(*ruleKeyRequest)

	key := domain.RuleKey{ControllerName: req.ControllerName, Endpoint: req.Endpoint}
	if err := h.rules.Remove(c.Ctx(), key); err != nil {
		next(err)
		return
	}
	next(h.snapshot())
}

// refresh reloads rules edited directly in the store.
//
// @Summary      Reload restriction rules
// @Tags         restriction
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.RestrictionRule
// @Failure      500  {object}  errorResponse
// @Router       /restriction/refresh [post]
func (h *RestrictionController) refresh(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
	if err := h.rules.Refresh(c.Ctx()); err != nil {
		next(err)
		return
	}
	next(h.snapshot())
}

func (h *RestrictionController) snapshot() []domain.RestrictionRule {
	rules := h.rules.Rules()
	metrics.RestrictionRulesLoaded.Set(float64(len(rules)))
	return rules
}

package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/application/service"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
	"github.com/turtacn/ubi/pkg/utils"
)

// PricingHandler exposes quoting, adjustment and pricing table administration over HTTP.
type PricingHandler struct {
	pricing service.PricingAppService
	logger  logger.Logger
}

// NewPricingHandler creates a new PricingHandler.
func NewPricingHandler(pricing service.PricingAppService, log logger.Logger) *PricingHandler {
	return &PricingHandler{
		pricing: pricing,
		logger:  log.WithComponent("pricing_handler"),
	}
}

// CalculateQuote handles POST /pricing/quote.
func (h *PricingHandler) CalculateQuote(c *gin.Context) {
	var req dto.QuoteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	quote, err := h.pricing.CalculateQuote(c.Request.Context(), &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, quote)
}

// ApplyAdjustment handles POST /pricing/adjustments.
func (h *PricingHandler) ApplyAdjustment(c *gin.Context) {
	var req dto.ApplyAdjustmentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	record, err := h.pricing.ApplyAdjustment(c.Request.Context(), &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusCreated, record)
}

// BulkAdjust handles POST /pricing/adjustments/bulk. Per-policy failures are part of a 200 response.
func (h *PricingHandler) BulkAdjust(c *gin.Context) {
	var req dto.BulkAdjustRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	result, err := h.pricing.BulkAdjust(c.Request.Context(), &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, result)
}

// GetPricingTable handles GET /pricing/table.
func (h *PricingHandler) GetPricingTable(c *gin.Context) {
	sendSuccess(c, http.StatusOK, h.pricing.GetPricingTable(c.Request.Context()))
}

// ValidatePricingRules handles GET /pricing/table/validate.
func (h *PricingHandler) ValidatePricingRules(c *gin.Context) {
	sendSuccess(c, http.StatusOK, h.pricing.ValidatePricingRules(c.Request.Context()))
}

// UpdatePricingTable handles PUT /pricing/table.
func (h *PricingHandler) UpdatePricingTable(c *gin.Context) {
	var req dto.UpdatePricingTableRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	resp, err := h.pricing.UpdatePricingTable(c.Request.Context(), &req)
	h.sendTableUpdate(c, resp, err)
}

// UpdatePricingRules handles PUT /pricing/table/rules.
func (h *PricingHandler) UpdatePricingRules(c *gin.Context) {
	var req dto.UpdatePricingRulesRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	resp, err := h.pricing.UpdatePricingRules(c.Request.Context(), &req)
	h.sendTableUpdate(c, resp, err)
}

// ResetPricingTable handles POST /pricing/table/reset.
func (h *PricingHandler) ResetPricingTable(c *gin.Context) {
	resp, err := h.pricing.ResetPricingTable(c.Request.Context())
	h.sendTableUpdate(c, resp, err)
}

// ExportPricingTable handles GET /pricing/table/export and returns the raw table document.
func (h *PricingHandler) ExportPricingTable(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.pricing.ExportPricingTable(c.Request.Context(), &buf); err != nil {
		sendError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="pricing_table.json"`)
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// ImportPricingTable handles POST /pricing/table/import. The body is a table document as produced by export.
func (h *PricingHandler) ImportPricingTable(c *gin.Context) {
	resp, err := h.pricing.ImportPricingTable(c.Request.Context(), c.Request.Body)
	h.sendTableUpdate(c, resp, err)
}

// sendTableUpdate returns the validation report alongside a VALIDATION_ERROR so callers see every violation.
func (h *PricingHandler) sendTableUpdate(c *gin.Context, resp *dto.PricingTableUpdateResponse, err error) {
	if err == nil {
		sendSuccess(c, http.StatusOK, resp)
		return
	}
	if resp == nil {
		sendError(c, h.logger, err)
		return
	}
	status, body := dto.ErrorResponse(err, traceID(c))
	body.Data = resp
	c.AbortWithStatusJSON(status, body)
}

// GetPricingMetrics handles GET /pricing/metrics.
func (h *PricingHandler) GetPricingMetrics(c *gin.Context) {
	m, err := h.pricing.GetPricingMetrics(c.Request.Context())
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, m)
}

// SimulateScenarios handles GET /pricing/scenarios?base_premium=.
func (h *PricingHandler) SimulateScenarios(c *gin.Context) {
	base, err := basePremiumQuery(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	scenarios, err := h.pricing.SimulateScenarios(c.Request.Context(), base)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, scenarios)
}

// ScenarioAnalysis handles GET /pricing/scenarios/analysis?base_premium=.
func (h *PricingHandler) ScenarioAnalysis(c *gin.Context) {
	base, err := basePremiumQuery(c)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	analysis, err := h.pricing.ScenarioAnalysis(c.Request.Context(), base)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, analysis)
}

// PremiumImpact handles POST /pricing/impact.
func (h *PricingHandler) PremiumImpact(c *gin.Context) {
	var req dto.PremiumImpactRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	impact, err := h.pricing.PremiumImpact(c.Request.Context(), &req)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, impact)
}

// CurrentPremium handles GET /policies/:policy_id/premium.
func (h *PricingHandler) CurrentPremium(c *gin.Context) {
	policyID, err := utils.ParseUUID("policy_id", c.Param("policy_id"))
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	resp, err := h.pricing.CurrentPremium(c.Request.Context(), policyID)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, resp)
}

// ListPolicyAdjustments handles GET /policies/:policy_id/adjustments, newest first.
func (h *PricingHandler) ListPolicyAdjustments(c *gin.Context) {
	policyID, err := utils.ParseUUID("policy_id", c.Param("policy_id"))
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	records, err := h.pricing.ListPolicyAdjustments(c.Request.Context(), policyID)
	if err != nil {
		sendError(c, h.logger, err)
		return
	}
	sendSuccess(c, http.StatusOK, records)
}

func basePremiumQuery(c *gin.Context) (float64, error) {
	raw := c.Query("base_premium")
	if raw == "" {
		return 0, errors.ErrInvalidInput("base_premium query parameter is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.ErrInvalidInput("base_premium must be a number, got %q", raw)
	}
	return v, nil
}

//Personal.AI order the ending

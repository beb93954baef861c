package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/middleware"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/internal/services"
)

// RepaymentService is the part of services.RepaymentService the handler uses
type RepaymentService interface {
	Create(ctx context.Context, actor services.Actor, in services.RecordPaymentInput) (*models.Repayment, error)
	FindByID(ctx context.Context, actor services.Actor, id uint) (*models.Repayment, error)
	ListByLoan(ctx context.Context, actor services.Actor, loanID uint, query *repository.ListQuery) ([]models.Repayment, int64, error)
	UpdateDetails(ctx context.Context, actor services.Actor, id uint, in services.RepaymentDetailsInput) (*models.Repayment, error)
	Delete(ctx context.Context, actor services.Actor, id uint) error
}

type RepaymentHandler struct {
	repaymentService RepaymentService
}

func NewRepaymentHandler(repaymentService RepaymentService) *RepaymentHandler {
	return &RepaymentHandler{repaymentService: repaymentService}
}

// RecordRepaymentRequest accepts the amount as a JSON number or string
type RecordRepaymentRequest struct {
	Amount    json.Number `json:"amount"`
	Method    string      `json:"method"`
	Reference *string     `json:"reference"`
	Notes     *string     `json:"notes"`
	PaidAt    *time.Time  `json:"paid_at"`
}

// @Summary Record Repayment
// @Description Records money received against an active loan and allocates it to the oldest installments first
// @Tags Repayments
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Param request body RecordRepaymentRequest true "Repayment"
// @Success 201 {object} models.RepaymentResponse
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Security BearerAuth
// @Router /loans/{loan_id}/repayments [post]
func (h *RepaymentHandler) Create(c *gin.Context) {
	loanID, ok := parseID(c, "loan_id")
	if !ok {
		return
	}

	var req RecordRepaymentRequest
	if err := BindNestedOrFlat(c, "repayment", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount.String()))
	if err != nil {
		respondError(c, services.ErrInvalidAmount)
		return
	}

	in := services.RecordPaymentInput{
		LoanID:    loanID,
		Amount:    amount,
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
	}
	if req.PaidAt != nil {
		in.PaidAt = req.PaidAt.UTC()
	}

	repayment, err := h.repaymentService.Create(c.Request.Context(), middleware.GetActor(c), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, repayment.ToResponse())
}

// @Summary List Loan Repayments
// @Tags Repayments
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Param method query string false "Filter by method"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /loans/{loan_id}/repayments [get]
func (h *RepaymentHandler) IndexByLoan(c *gin.Context) {
	loanID, ok := parseID(c, "loan_id")
	if !ok {
		return
	}

	query := listQuery(c)
	if method := c.Query("method"); method != "" {
		query.Filters["method"] = strings.ToUpper(method)
	}

	repayments, total, err := h.repaymentService.ListByLoan(c.Request.Context(), middleware.GetActor(c), loanID, query)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.RepaymentResponse, 0, len(repayments))
	for i := range repayments {
		responses = append(responses, repayments[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"repayments": responses,
		"pagination": pagination(query, total),
	})
}

// @Summary Show Repayment
// @Tags Repayments
// @Produce json
// @Param repayment_id path int true "Repayment ID"
// @Success 200 {object} models.RepaymentResponse
// @Security BearerAuth
// @Router /repayments/{repayment_id} [get]
func (h *RepaymentHandler) Show(c *gin.Context) {
	id, ok := parseID(c, "repayment_id")
	if !ok {
		return
	}

	repayment, err := h.repaymentService.FindByID(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, repayment.ToResponse())
}

type UpdateRepaymentRequest struct {
	Method    *string `json:"method"`
	Reference *string `json:"reference"`
	Notes     *string `json:"notes"`
}

// @Summary Update Repayment Details
// @Description Edits method, reference or notes. The amount can never change.
// @Tags Repayments
// @Accept json
// @Produce json
// @Param repayment_id path int true "Repayment ID"
// @Param request body UpdateRepaymentRequest true "Details"
// @Success 200 {object} models.RepaymentResponse
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /repayments/{repayment_id} [patch]
func (h *RepaymentHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "repayment_id")
	if !ok {
		return
	}

	var req UpdateRepaymentRequest
	if err := BindNestedOrFlat(c, "repayment", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	repayment, err := h.repaymentService.UpdateDetails(c.Request.Context(), middleware.GetActor(c), id, services.RepaymentDetailsInput{
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, repayment.ToResponse())
}

// @Summary Delete Repayment
// @Description Reverses a repayment and restores the installments it paid
// @Tags Repayments
// @Produce json
// @Param repayment_id path int true "Repayment ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /repayments/{repayment_id} [delete]
func (h *RepaymentHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "repayment_id")
	if !ok {
		return
	}

	if err := h.repaymentService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Repayment reversed"})
}

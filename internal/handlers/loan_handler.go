package handlers

import (
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

type LoanHandler struct {
	loanService *services.LoanService
}

func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

type CreateLoanRequest struct {
	BranchID      *uint       `json:"branch_id"`
	OfficerID     *uint       `json:"officer_id"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
	Principal     json.Number `json:"principal"`
	InterestRate  json.Number `json:"interest_rate"`
	TermMonths    int         `json:"term_months"`
}

// @Summary Create Loan
// @Description Registers a DRAFT loan application in the caller's branch
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body CreateLoanRequest true "Loan"
// @Success 201 {object} models.LoanResponse
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /loans [post]
func (h *LoanHandler) Create(c *gin.Context) {
	var req CreateLoanRequest
	if err := BindNestedOrFlat(c, "loan", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	principal, err := decimal.NewFromString(req.Principal.String())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "principal must be a number"})
		return
	}
	rate := decimal.Zero
	if req.InterestRate != "" {
		if rate, err = decimal.NewFromString(req.InterestRate.String()); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interest_rate must be a number"})
			return
		}
	}

	loan, err := h.loanService.Create(c.Request.Context(), middleware.GetActor(c), services.CreateLoanInput{
		BranchID:      req.BranchID,
		OfficerID:     req.OfficerID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Principal:     principal,
		InterestRate:  rate,
		TermMonths:    req.TermMonths,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, loan.ToResponse())
}

// @Summary List Loans
// @Tags Loans
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "Filter by status"
// @Param branch_id query int false "Filter by branch (admins only)"
// @Param officer_id query int false "Filter by officer"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /loans [get]
func (h *LoanHandler) Index(c *gin.Context) {
	branchID, err := parseOptionalUint(c, "branch_id")
	if err != nil {
		respondError(c, err)
		return
	}
	officerID, err := parseOptionalUint(c, "officer_id")
	if err != nil {
		respondError(c, err)
		return
	}

	query := &repository.LoanQuery{
		ListQuery: listQuery(c),
		BranchID:  branchID,
		OfficerID: officerID,
		Status:    strings.ToUpper(c.Query("status")),
	}

	loans, total, err := h.loanService.List(c.Request.Context(), middleware.GetActor(c), query)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.LoanResponse, 0, len(loans))
	for i := range loans {
		responses = append(responses, loans[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"loans":      responses,
		"pagination": pagination(query.ListQuery, total),
	})
}

// @Summary Show Loan
// @Description Returns a loan with its repayment schedule
// @Tags Loans
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id} [get]
func (h *LoanHandler) Show(c *gin.Context) {
	id, ok := parseID(c, "loan_id")
	if !ok {
		return
	}

	loan, err := h.loanService.FindByID(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, loan.ToResponse())
}

// Transition returns a handler firing event on the loan in the path
func (h *LoanHandler) Transition(event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "loan_id")
		if !ok {
			return
		}

		loan, err := h.loanService.Transition(c.Request.Context(), middleware.GetActor(c), id, event)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, loan.ToResponse())
	}
}

type ActivateLoanRequest struct {
	FirstDueDate string `json:"first_due_date"`
}

// @Summary Activate Loan
// @Description Disburses an approved loan and generates its repayment schedule
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Param request body ActivateLoanRequest false "First due date (YYYY-MM-DD)"
// @Success 200 {object} models.LoanResponse
// @Failure 422 {object} map[string]string
// @Security BearerAuth
// @Router /loans/{loan_id}/activate [post]
func (h *LoanHandler) Activate(c *gin.Context) {
	id, ok := parseID(c, "loan_id")
	if !ok {
		return
	}

	var req ActivateLoanRequest
	if c.Request.ContentLength != 0 {
		if err := BindNestedOrFlat(c, "loan", &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	var firstDue *time.Time
	if req.FirstDueDate != "" {
		t, err := time.Parse("2006-01-02", req.FirstDueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "first_due_date must be YYYY-MM-DD"})
			return
		}
		firstDue = &t
	}

	loan, err := h.loanService.Activate(c.Request.Context(), middleware.GetActor(c), id, firstDue)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, loan.ToResponse())
}

// @Summary Delete Loan
// @Description Soft-deletes a loan with its schedule. Repayment history is kept.
// @Tags Loans
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /loans/{loan_id} [delete]
func (h *LoanHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "loan_id")
	if !ok {
		return
	}

	if err := h.loanService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Loan deleted"})
}

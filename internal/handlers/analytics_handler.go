package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/lendcore-api/internal/middleware"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/internal/services"
)

type AnalyticsHandler struct {
	analyticsSvc *services.AnalyticsService
	exportSvc    *services.ExportService
}

func NewAnalyticsHandler(analyticsSvc *services.AnalyticsService, exportSvc *services.ExportService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsSvc: analyticsSvc,
		exportSvc:    exportSvc,
	}
}

// @Summary Portfolio Summary
// @Description Loan counts by status, outstanding balance, collections and overdue installments
// @Tags Analytics
// @Produce json
// @Param branch_id query int false "Branch ID (admins only)"
// @Param from query string false "Collections from (YYYY-MM-DD)"
// @Param to query string false "Collections to, exclusive (YYYY-MM-DD)"
// @Success 200 {object} models.PortfolioSummary
// @Security BearerAuth
// @Router /analytics/portfolio [get]
func (h *AnalyticsHandler) Portfolio(c *gin.Context) {
	filter, err := parsePortfolioFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	summary, err := h.analyticsSvc.Portfolio(c.Request.Context(), middleware.GetActor(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Collections by Branch
// @Description Amount collected per branch in the period. Admins only.
// @Tags Analytics
// @Produce json
// @Param from query string false "From (YYYY-MM-DD)"
// @Param to query string false "To, exclusive (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /analytics/collections [get]
func (h *AnalyticsHandler) Collections(c *gin.Context) {
	filter, err := parsePortfolioFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, err := h.analyticsSvc.CollectionsByBranch(c.Request.Context(), filter.From, filter.To)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": rows})
}

// @Summary Export Portfolio Summary
// @Description Downloads the portfolio summary as csv, xlsx or pdf
// @Tags Analytics
// @Produce application/octet-stream
// @Param format query string true "Report format (csv, xlsx, pdf)"
// @Param branch_id query int false "Branch ID (admins only)"
// @Param from query string false "Collections from (YYYY-MM-DD)"
// @Param to query string false "Collections to, exclusive (YYYY-MM-DD)"
// @Security BearerAuth
// @Router /analytics/portfolio/export [get]
func (h *AnalyticsHandler) ExportPortfolio(c *gin.Context) {
	filter, err := parsePortfolioFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	summary, err := h.analyticsSvc.Portfolio(c.Request.Context(), middleware.GetActor(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	file, err := h.exportSvc.ExportPortfolio(c.Request.Context(), summary, c.Query("format"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, file)
}

// @Summary Export Collections by Branch
// @Description Downloads the per-branch collections as csv, xlsx or pdf. Admins only.
// @Tags Analytics
// @Produce application/octet-stream
// @Param format query string true "Report format (csv, xlsx, pdf)"
// @Param from query string false "From (YYYY-MM-DD)"
// @Param to query string false "To, exclusive (YYYY-MM-DD)"
// @Security BearerAuth
// @Router /analytics/collections/export [get]
func (h *AnalyticsHandler) ExportCollections(c *gin.Context) {
	filter, err := parsePortfolioFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, err := h.analyticsSvc.CollectionsByBranch(c.Request.Context(), filter.From, filter.To)
	if err != nil {
		respondError(c, err)
		return
	}

	file, err := h.exportSvc.ExportCollections(c.Request.Context(), rows, filter.From, filter.To, c.Query("format"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, file)
}

func sendFile(c *gin.Context, file *services.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func parsePortfolioFilter(c *gin.Context) (repository.PortfolioFilter, error) {
	var filter repository.PortfolioFilter
	var err error

	if filter.BranchID, err = parseOptionalUint(c, "branch_id"); err != nil {
		return filter, err
	}
	if filter.From, err = parseDate(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseDate(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

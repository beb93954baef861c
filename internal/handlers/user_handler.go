package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/lendcore-api/internal/middleware"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/sjperalta/lendcore-api/internal/repository"
	"github.com/sjperalta/lendcore-api/internal/services"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// @Summary List Users
// @Description Staff in the caller's branch; admins see every branch
// @Tags Users
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param role query string false "Filter by role"
// @Param status query string false "Filter by status"
// @Param branch_id query int false "Branch ID (admins only)"
// @Param search query string false "Search by name or email"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) Index(c *gin.Context) {
	branchID, err := parseOptionalUint(c, "branch_id")
	if err != nil {
		respondError(c, err)
		return
	}
	query := &repository.UserQuery{
		ListQuery: listQuery(c),
		BranchID:  branchID,
		Role:      strings.ToLower(c.Query("role")),
		Status:    strings.ToLower(c.Query("status")),
	}

	users, total, err := h.userService.List(c.Request.Context(), middleware.GetActor(c), query)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, users[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"users":      responses,
		"pagination": pagination(query.ListQuery, total),
	})
}

// @Summary Current User
// @Tags Users
// @Produce json
// @Success 200 {object} models.UserResponse
// @Security BearerAuth
// @Router /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.userService.FindByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.ToResponse())
}

type CreateUserRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	FullName       string `json:"full_name"`
	FullNamePascal string `json:"FullName"` // Support PascalCase from some frontends/tools
	Phone          string `json:"phone"`
	Role           string `json:"role"`
	BranchID       *uint  `json:"branch_id"`
}

// @Summary Create User
// @Description Creates a staff account. Admins only.
// @Tags Users
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "User Data"
// @Success 201 {object} models.UserResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FullName == "" && req.FullNamePascal != "" {
		req.FullName = req.FullNamePascal
	}
	if req.FullName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "full_name is required"})
		return
	}

	user, err := h.userService.Create(c.Request.Context(), middleware.GetActor(c), services.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     req.Role,
		BranchID: req.BranchID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.ToResponse(), "message": "User created"})
}

type BranchHandler struct {
	userService *services.UserService
}

func NewBranchHandler(userService *services.UserService) *BranchHandler {
	return &BranchHandler{userService: userService}
}

// @Summary List Branches
// @Tags Branches
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /branches [get]
func (h *BranchHandler) Index(c *gin.Context) {
	branches, err := h.userService.ListBranches(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches})
}

type CreateBranchRequest struct {
	Code    string  `json:"code" binding:"required"`
	Name    string  `json:"name" binding:"required"`
	Address *string `json:"address"`
}

// @Summary Create Branch
// @Description Registers a branch; an existing code returns the stored branch
// @Tags Branches
// @Accept json
// @Produce json
// @Param request body CreateBranchRequest true "Branch"
// @Success 201 {object} models.Branch
// @Security BearerAuth
// @Router /branches [post]
func (h *BranchHandler) Create(c *gin.Context) {
	var req CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	branch, err := h.userService.CreateBranch(c.Request.Context(), req.Code, req.Name, req.Address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, branch)
}

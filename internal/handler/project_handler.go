package handler

import (
	"net/http"

	"renopilot/internal/service"

	"github.com/labstack/echo/v4"
)

type ProjectHandler struct {
	projectService service.ProjectService
	authHandler    *AuthHandler
	logger         echo.Logger
}

func NewProjectHandler(projectService service.ProjectService, authHandler *AuthHandler, logger echo.Logger) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		authHandler:    authHandler,
		logger:         logger,
	}
}

// CreateProject creates a new renovation project
func (h *ProjectHandler) CreateProject(c echo.Context) error {
	user, err := h.authHandler.GetCurrentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}

	var req struct {
		Title       string  `json:"title"`
		Address     string  `json:"address"`
		Description string  `json:"description"`
		BudgetLimit float64 `json:"budget_limit"`
		Currency    string  `json:"currency"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	project, err := h.projectService.CreateProject(c.Request().Context(), user.ID, req.Title, req.Address, req.Description, req.BudgetLimit, req.Currency)
	if err != nil {
		h.logger.Error("Failed to create project:", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, project)
}

// GetProjects lists the authenticated user's projects
func (h *ProjectHandler) GetProjects(c echo.Context) error {
	user, err := h.authHandler.GetCurrentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}

	projects, err := h.projectService.GetProjectsByUser(c.Request().Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to get projects:", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, projects)
}

// GetProject retrieves a project by ID
func (h *ProjectHandler) GetProject(c echo.Context) error {
	user, err := h.authHandler.GetCurrentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}

	project, err := h.projectService.GetProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if project.UserID != user.ID {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "Project not found",
		})
	}

	return c.JSON(http.StatusOK, project)
}

// CreateContractor adds a contractor to the shared directory
func (h *ProjectHandler) CreateContractor(c echo.Context) error {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Trade string `json:"trade"`
		Notes string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	contractor, err := h.projectService.CreateContractor(c.Request().Context(), req.Name, req.Email, req.Trade, req.Notes)
	if err != nil {
		h.logger.Error("Failed to create contractor:", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, contractor)
}

// GetContractors lists the contractor directory
func (h *ProjectHandler) GetContractors(c echo.Context) error {
	contractors, err := h.projectService.GetContractors(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to get contractors:", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, contractors)
}

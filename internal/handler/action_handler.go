package handler

import (
	"net/http"

	"renopilot/internal/service"

	"github.com/labstack/echo/v4"
)

type ActionHandler struct {
	actionService service.ActionService
	logger        echo.Logger
}

func NewActionHandler(actionService service.ActionService, logger echo.Logger) *ActionHandler {
	return &ActionHandler{
		actionService: actionService,
		logger:        logger,
	}
}

// GetAction retrieves an action by ID
func (h *ActionHandler) GetAction(c echo.Context) error {
	action, err := h.actionService.GetAction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, action)
}

// ApproveAction approves a pending action and executes it. An optional
// modifications string re-drafts the payload first.
func (h *ActionHandler) ApproveAction(c echo.Context) error {
	var req struct {
		Modifications string `json:"modifications"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	action, err := h.actionService.Approve(c.Request().Context(), c.Param("id"), req.Modifications)
	if err != nil {
		h.logger.Error("Failed to approve action:", err)
		if action != nil {
			// Execution failed after approval; report the failed action so
			// the client can offer a retry
			return c.JSON(http.StatusBadGateway, map[string]interface{}{
				"error":  err.Error(),
				"action": action,
			})
		}
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, action)
}

// RejectAction rejects a pending action without executing it
func (h *ActionHandler) RejectAction(c echo.Context) error {
	if err := h.actionService.Reject(c.Request().Context(), c.Param("id")); err != nil {
		h.logger.Error("Failed to reject action:", err)
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

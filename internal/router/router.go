package router

import (
	"net/http"

	"renopilot/internal/handler"
	"renopilot/internal/middleware"

	"github.com/labstack/echo/v4"
)

func SetupRoutes(
	e *echo.Echo,
	authHandler *handler.AuthHandler,
	projectHandler *handler.ProjectHandler,
	conversationHandler *handler.ConversationHandler,
	actionHandler *handler.ActionHandler,
) {
	// Public routes
	e.GET("/auth/:provider", authHandler.BeginAuthHandler)
	e.GET("/auth/:provider/callback", authHandler.CallbackHandler)
	e.GET("/auth/logout", authHandler.LogoutHandler)

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// Protected API routes
	protected := e.Group("/api")
	protected.Use(middleware.AuthMiddleware(authHandler))

	protected.POST("/projects", projectHandler.CreateProject)
	protected.GET("/projects", projectHandler.GetProjects)
	protected.GET("/projects/:id", projectHandler.GetProject)
	protected.GET("/projects/:projectId/conversations", conversationHandler.GetConversations)

	protected.POST("/contractors", projectHandler.CreateContractor)
	protected.GET("/contractors", projectHandler.GetContractors)

	protected.POST("/conversations", conversationHandler.StartConversation)
	protected.GET("/conversations/:id/messages", conversationHandler.GetMessages)
	protected.POST("/conversations/:id/messages", conversationHandler.PostMessage)
	protected.GET("/conversations/:id/offers", conversationHandler.GetOffers)
	protected.GET("/conversations/:id/analyses", conversationHandler.GetAnalyses)

	protected.GET("/actions/:id", actionHandler.GetAction)
	protected.POST("/actions/:id/approve", actionHandler.ApproveAction)
	protected.POST("/actions/:id/reject", actionHandler.RejectAction)

	protected.POST("/poll", conversationHandler.TriggerPoll)

	// Real-time updates via Server-Sent Events
	protected.GET("/sse", conversationHandler.SSEUpdates)
}

package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"renopilot/internal/model"
	"renopilot/internal/service"
	"renopilot/internal/sse"

	"github.com/labstack/echo/v4"
)

type ConversationHandler struct {
	conversationService service.ConversationService
	offerService        service.OfferService
	ingestionService    service.IngestionService
	authHandler         *AuthHandler
	sseManager          *sse.Manager
	logger              echo.Logger
}

func NewConversationHandler(
	conversationService service.ConversationService,
	offerService service.OfferService,
	ingestionService service.IngestionService,
	authHandler *AuthHandler,
	sseManager *sse.Manager,
	logger echo.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		offerService:        offerService,
		ingestionService:    ingestionService,
		authHandler:         authHandler,
		sseManager:          sseManager,
		logger:              logger,
	}
}

// StartConversation opens (or returns) the thread between a project and a
// contractor
func (h *ConversationHandler) StartConversation(c echo.Context) error {
	user, err := h.authHandler.GetCurrentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}

	var req struct {
		ProjectID    string `json:"project_id"`
		ContractorID string `json:"contractor_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if req.ProjectID == "" || req.ContractorID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "project_id and contractor_id are required",
		})
	}

	conversation, err := h.conversationService.StartConversation(c.Request().Context(), user.ID, req.ProjectID, req.ContractorID)
	if err != nil {
		h.logger.Error("Failed to start conversation:", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, conversation)
}

// GetConversations lists a project's conversations
func (h *ConversationHandler) GetConversations(c echo.Context) error {
	conversations, err := h.conversationService.GetConversationsByProject(c.Request().Context(), c.Param("projectId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conversations)
}

// GetMessages returns a conversation's messages in chronological order
func (h *ConversationHandler) GetMessages(c echo.Context) error {
	messages, err := h.conversationService.GetMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// PostMessage runs one agent turn and returns the reply plus any proposed
// action
func (h *ConversationHandler) PostMessage(c echo.Context) error {
	var req struct {
		Text        string                    `json:"text"`
		Attachments []model.MessageAttachment `json:"attachments"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	message, action, err := h.conversationService.ProcessUserMessage(c.Request().Context(), c.Param("id"), req.Text, req.Attachments)
	if err != nil {
		h.logger.Error("Failed to process message:", err)
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": message,
		"action":  action,
	})
}

// GetOffers lists the offers extracted inside a conversation
func (h *ConversationHandler) GetOffers(c echo.Context) error {
	offers, err := h.offerService.GetOffersByConversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, offers)
}

// GetAnalyses lists the offer analyses produced inside a conversation
func (h *ConversationHandler) GetAnalyses(c echo.Context) error {
	analyses, err := h.offerService.GetAnalysesByConversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, analyses)
}

// TriggerPoll runs one ingestion pass on demand and returns its report
func (h *ConversationHandler) TriggerPoll(c echo.Context) error {
	report, err := h.ingestionService.PollOnce(c.Request().Context())
	if err != nil {
		h.logger.Error("Manual poll failed:", err)
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// SSEUpdates streams ingestion events to the authenticated user
func (h *ConversationHandler) SSEUpdates(c echo.Context) error {
	user, err := h.authHandler.GetCurrentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")

	clientChannel := h.sseManager.AddClient(user.ID)
	defer func() {
		h.sseManager.RemoveClient(user.ID, clientChannel)
	}()

	initEvent := map[string]interface{}{
		"type": "connection",
		"data": map[string]string{
			"message": "Connected to renovation updates",
			"userId":  user.ID,
		},
		"time": time.Now().Unix(),
	}
	initJSON, _ := json.Marshal(initEvent)
	fmt.Fprintf(c.Response(), "data: %s\n\n", initJSON)
	c.Response().Flush()

	for {
		select {
		case eventData, ok := <-clientChannel:
			if !ok {
				return nil
			}
			fmt.Fprintf(c.Response(), "data: %s\n\n", eventData)
			c.Response().Flush()
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

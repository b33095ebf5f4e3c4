package service

import (
	"testing"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchPlainText(t *testing.T) {
	d := NewDispatcher()

	msg, action, err := d.Dispatch("conv-1", &ai.Result{Text: "Sounds good."})
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Equal(t, model.MessagePlain, msg.Kind)
	assert.Equal(t, model.SenderAI, msg.Sender)
	assert.Equal(t, "Sounds good.", msg.Content)
}

func TestDispatchToolCallCreatesPendingAction(t *testing.T) {
	d := NewDispatcher()

	result := &ai.Result{Tool: &ai.ToolCall{
		Name: "send_email",
		Args: map[string]interface{}{
			"to":      "office@meyer-bau.example",
			"subject": "Quote request",
			"body":    "Could you quote the bathroom remodel?",
		},
	}}

	msg, action, err := d.Dispatch("conv-1", result)
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.Equal(t, model.MessageActionProposal, msg.Kind)
	assert.Equal(t, model.ActionSendEmail, action.Kind)
	assert.Equal(t, model.StatusPending, action.Status)
	assert.Equal(t, msg.ID, action.MessageID)
	assert.Contains(t, action.Summary, "office@meyer-bau.example")

	var payload model.SendEmailPayload
	require.NoError(t, action.DecodePayload(&payload))
	assert.Equal(t, "Quote request", payload.Subject)
}

func TestDispatchUnknownToolDegradesToPlainMessage(t *testing.T) {
	d := NewDispatcher()

	result := &ai.Result{Tool: &ai.ToolCall{Name: "delete_everything", Args: map[string]interface{}{}}}

	msg, action, err := d.Dispatch("conv-1", result)
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Equal(t, model.MessagePlain, msg.Kind)
	assert.NotEmpty(t, msg.Content)
}

func TestDispatchMissingRequiredFieldIsRefused(t *testing.T) {
	d := NewDispatcher()

	result := &ai.Result{Tool: &ai.ToolCall{
		Name: "send_email",
		Args: map[string]interface{}{"to": "office@meyer-bau.example"},
	}}

	_, _, err := d.Dispatch("conv-1", result)
	assert.True(t, apperr.IsValidation(err))
}

func TestDispatchCompareOffersParsesIDList(t *testing.T) {
	d := NewDispatcher()

	result := &ai.Result{Tool: &ai.ToolCall{
		Name: "compare_offers",
		Args: map[string]interface{}{
			"primary_offer_id":   "offer-1",
			"compared_offer_ids": []interface{}{"offer-2", "offer-3"},
		},
	}}

	_, action, err := d.Dispatch("conv-1", result)
	require.NoError(t, err)
	require.NotNil(t, action)

	var payload model.CompareOffersPayload
	require.NoError(t, action.DecodePayload(&payload))
	assert.Equal(t, "offer-1", payload.PrimaryOfferID)
	assert.Equal(t, []string{"offer-2", "offer-3"}, payload.ComparedOfferIDs)
}

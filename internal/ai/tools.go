package ai

// ToolCall is a structured invocation proposed by the model. Name is matched
// against the closed action set by the dispatcher; unknown names degrade to
// plain text there, never here.
type ToolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// StringArg returns a string argument, empty when absent or mistyped.
func (t *ToolCall) StringArg(key string) string {
	if v, ok := t.Args[key].(string); ok {
		return v
	}
	return ""
}

// StringSliceArg returns a string-slice argument, tolerating the
// []interface{} shape JSON decoding produces.
func (t *ToolCall) StringSliceArg(key string) []string {
	switch v := t.Args[key].(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// agentTools is the closed tool schema offered to the model on conversation
// turns, in chat-completions function format.
var agentTools = []toolDefinition{
	{
		Type: "function",
		Function: functionDefinition{
			Name:        "send_email",
			Description: "Draft an email to the contractor. It is sent only after the homeowner approves it.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"to":      map[string]interface{}{"type": "string", "description": "Recipient email address"},
					"subject": map[string]interface{}{"type": "string"},
					"body":    map[string]interface{}{"type": "string", "description": "Email body, plain text or simple HTML"},
				},
				"required": []string{"to", "subject", "body"},
			},
		},
	},
	{
		Type: "function",
		Function: functionDefinition{
			Name:        "fetch_email",
			Description: "Fetch the most recent emails from the contractor's address into the conversation.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"contractor_id": map[string]interface{}{"type": "string"},
					"max":           map[string]interface{}{"type": "integer", "description": "How many recent messages to fetch"},
				},
				"required": []string{"contractor_id"},
			},
		},
	},
	{
		Type: "function",
		Function: functionDefinition{
			Name:        "analyze_offer",
			Description: "Analyze a previously extracted price offer from this contractor.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"offer_id": map[string]interface{}{"type": "string"},
				},
				"required": []string{"offer_id"},
			},
		},
	},
	{
		Type: "function",
		Function: functionDefinition{
			Name:        "compare_offers",
			Description: "Compare the latest offer of this contractor against the latest offers of other contractors on the project.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"primary_offer_id":   map[string]interface{}{"type": "string"},
					"compared_offer_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
				"required": []string{"primary_offer_id"},
			},
		},
	},
}

type toolDefinition struct {
	Type     string             `json:"type"`
	Function functionDefinition `json:"function"`
}

type functionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

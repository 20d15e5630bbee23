package domain

// ExchangeRequest describes one request/response round with a chat-completion
// endpoint.
type ExchangeRequest struct {
	// Prompt is sent as the newest user turn.
	Prompt string
	// Context is the prior conversation. When empty, a new conversation is
	// seeded from System and Prompt; when non-empty, System is ignored (the
	// system turn already lives at the head of the context).
	Context Conversation
	// System seeds a fresh conversation's system turn.
	System string
	// Assistant, when non-empty, is appended after the user turn before the
	// request is sent, priming a partial continuation.
	Assistant string

	Model       string
	MaxTokens   int
	Temperature float64
}

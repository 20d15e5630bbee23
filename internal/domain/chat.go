package domain

// Chat message roles accepted by OpenAI-compatible endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape exchanged with the
// LLM integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered, append-only sequence of chat turns. Insertion
// order is turn order as sent to the endpoint.
type Conversation []ChatMessage

// Append returns a new Conversation with msgs added at the end. The receiver
// is never mutated, so branches built from a shared prefix stay independent.
func (c Conversation) Append(msgs ...ChatMessage) Conversation {
	out := make(Conversation, 0, len(c)+len(msgs))
	out = append(out, c...)
	out = append(out, msgs...)
	return out
}

// Seed starts a fresh conversation from a system instruction and an opening
// user prompt.
func Seed(systemInstruction, prompt string) Conversation {
	return Conversation{
		{Role: RoleSystem, Content: systemInstruction},
		{Role: RoleUser, Content: prompt},
	}
}

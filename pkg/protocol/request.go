package protocol

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HTTP headers used by the authoring endpoints.
const (
	HeaderConversationID = "X-Conversation-ID"
	HeaderTenantID       = "X-Tenant-ID"
)

// ChatMessage is one prior turn sent with a request.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Attachment references an uploaded file the user wants the agent to consider.
type Attachment struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MediaType string `json:"mediaType,omitempty"`
}

// TurnRequest starts one authoring turn.
type TurnRequest struct {
	ConversationID string        `json:"conversationId,omitempty"`
	Messages       []ChatMessage `json:"messages"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	TenantSlug     string        `json:"tenantSlug,omitempty"`
	TenantID       string        `json:"tenantId,omitempty"`
	// ConfirmPreview is the structured confirmation of the latest preview.
	ConfirmPreview bool `json:"confirmPreview,omitempty"`
}

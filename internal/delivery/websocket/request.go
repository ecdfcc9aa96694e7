package websocket

// Command is one inbound client frame, discriminated by Type.
type Command struct {
	Type           string `json:"type"`
	ConversationId string `json:"conversationId,omitempty"`
	Content        string `json:"content,omitempty"`
	ClientRef      string `json:"clientRef,omitempty"`
}

const (
	CommandOpen              = "open"
	CommandClose             = "close"
	CommandLoadOlder         = "loadOlder"
	CommandSend              = "send"
	CommandRead              = "read"
	CommandReadNotifications = "readNotifications"
)

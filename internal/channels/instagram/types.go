package instagram

// WebhookEvent is the top-level structure received from Meta's webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents a single entry in the webhook payload.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging represents a single messaging event.
type Messaging struct {
	Sender    *Party    `json:"sender,omitempty"`
	Recipient *Party    `json:"recipient,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
}

// Party identifies a sender or recipient.
type Party struct {
	ID string `json:"id"`
}

// Message contains the message content.
type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// Postback represents a postback event (button tap).
type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// SendRequest is the payload sent to the Graph API to send a message.
type SendRequest struct {
	Recipient Party       `json:"recipient"`
	Message   SendMessage `json:"message"`
}

// SendMessage is the message content for outbound messages.
type SendMessage struct {
	Text string `json:"text"`
}

// SendResponse is the response from the Graph API after sending a message.
type SendResponse struct {
	RecipientID string    `json:"recipient_id"`
	MessageID   string    `json:"message_id"`
	Error       *APIError `json:"error,omitempty"`
}

// APIError represents an error returned by the Graph API.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// AccountInfo is the subset of the Graph API account node used for health checks.
type AccountInfo struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Error    *APIError `json:"error,omitempty"`
}

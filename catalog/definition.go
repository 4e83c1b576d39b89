package catalog

import "encoding/json"

// Definition describes one event type the gateway emits.
type Definition struct {
	// Name is the event name, "<resource>-<action>".
	Name string `json:"name"`

	Description string `json:"description"`

	// Schema is an optional JSON Schema for the payload. When set, Trigger
	// rejects payloads that do not satisfy it.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Example is an optional sample payload for docs and test sends.
	Example json.RawMessage `json:"example,omitempty"`
}

// Event names emitted by the chat gateway.
const (
	AccountCreated      = "account-created"
	AccountLogin        = "account-login"
	ConversationCreated = "conversation-created"
	ConversationUpdated = "conversation-updated"
	MessageSent         = "message-sent"
	MessageReceived     = "message-received"
	BackupCreated       = "backup-created"
	BackupRestored      = "backup-restored"
	SubscriptionCreated = "subscription-created"
	SubscriptionFailed  = "subscription-failed"
)

// Builtin returns the gateway's standard event definitions.
func Builtin() []Definition {
	return []Definition{
		{
			Name:        AccountCreated,
			Description: "A user account was registered.",
			Example:     json.RawMessage(`{"id":"u1","username":"ada"}`),
		},
		{Name: AccountLogin, Description: "A user signed in."},
		{Name: ConversationCreated, Description: "A new conversation was started."},
		{Name: ConversationUpdated, Description: "A conversation was renamed or its settings changed."},
		{Name: MessageSent, Description: "The model sent a reply in a conversation."},
		{
			Name:        MessageReceived,
			Description: "A user message arrived in a conversation.",
			Example:     json.RawMessage(`{"conversation_id":"c1","content":"hi"}`),
		},
		{Name: BackupCreated, Description: "A backup file was written."},
		{Name: BackupRestored, Description: "The database was restored from a backup."},
		{Name: SubscriptionCreated, Description: "A webhook subscription was registered."},
		{Name: SubscriptionFailed, Description: "A webhook delivery exhausted its retries."},
	}
}

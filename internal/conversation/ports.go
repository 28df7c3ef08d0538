package conversation

import "context"

// Store persists conversation records, message logs and FAQ content.
type Store interface {
	FindBySender(ctx context.Context, address string) (*UserConversation, error)
	Create(ctx context.Context, address string) (*UserConversation, error)
	Save(ctx context.Context, user *UserConversation) (*UserConversation, error)
	AppendLog(ctx context.Context, conversationID string, direction Direction, text string) error
	History(ctx context.Context, conversationID string) ([]MessageLogEntry, error)
	FAQsByOrganizationUnit(ctx context.Context, unit string) ([]FAQ, error)
}

// FAQSource supplies FAQ content for an organization unit.
type FAQSource interface {
	FAQsByOrganizationUnit(ctx context.Context, unit string) ([]FAQ, error)
}

// DeliveryGateway sends outbound messages to a sender.
type DeliveryGateway interface {
	Send(ctx context.Context, address, text, inReplyTo string) error
	MarkRead(ctx context.Context, messageID string) error
}

// ResponseGenerator produces the assistant reply for a chat turn.
type ResponseGenerator interface {
	Reply(ctx context.Context, conversationID string, history []MessageLogEntry) (string, error)
}

// Deduplicator guards against concurrent processing of one inbound message id.
type Deduplicator interface {
	Admit(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// Handler processes one inbound event. Implementations never fail the caller.
type Handler interface {
	Handle(ctx context.Context, sender, text, messageID string)
}

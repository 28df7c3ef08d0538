package whatsapp

import (
	"context"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// DryRunGateway logs outbound traffic instead of calling the Cloud API. It is
// used when no access token is configured.
type DryRunGateway struct {
	logger *logging.Logger
}

// NewDryRunGateway returns a gateway that only logs outbound messages.
func NewDryRunGateway(logger *logging.Logger) *DryRunGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &DryRunGateway{logger: logger}
}

func (g *DryRunGateway) Send(ctx context.Context, address, text, inReplyTo string) error {
	g.logger.Info("dry-run whatsapp send", "to", address, "in_reply_to", inReplyTo, "text", text)
	return nil
}

func (g *DryRunGateway) SendImage(ctx context.Context, address, link, inReplyTo string) error {
	g.logger.Info("dry-run whatsapp image", "to", address, "in_reply_to", inReplyTo, "link", link)
	return nil
}

func (g *DryRunGateway) MarkRead(ctx context.Context, messageID string) error {
	g.logger.Debug("dry-run whatsapp read receipt", "message_id", messageID)
	return nil
}

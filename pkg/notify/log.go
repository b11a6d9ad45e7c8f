package notify

import (
	"context"

	"github.com/Gobusters/ectologger"
)

// LogNotifier writes messages to the log instead of sending them. It is used
// when no mail channel is configured.
type LogNotifier struct {
	logger ectologger.Logger
}

func NewLogNotifier(logger ectologger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.WithContext(ctx).WithFields(map[string]any{
		"subject":    msg.Subject,
		"recipients": msg.To,
	}).Infof("Notification (not sent):\n%s", msg.Body)
	return nil
}

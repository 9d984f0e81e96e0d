package data

import (
	"context"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// LogNotifier implements biz.Notifier by logging the dispatch. Delivery
// transports (email, Slack) live outside this service; rules only select the
// channel and template.
type LogNotifier struct {
	logger *log.Helper
}

// NewLogNotifier creates a new log-backed notifier.
func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{
		logger: log.NewHelper(logger),
	}
}

// Send logs the notification dispatch.
func (n *LogNotifier) Send(ctx context.Context, channel, template string, order *model.OrderSnapshot) error {
	n.logger.Infow("notification dispatched",
		"channel", channel,
		"template", template,
		"order_id", order.ID,
		"order_number", order.Number)
	return nil
}

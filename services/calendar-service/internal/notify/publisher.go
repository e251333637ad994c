// Package notify is the writer side of the tenant change feed: after a
// committed write the service publishes the change on the salon's Redis
// channel, where every open calendar session's bridge picks it up.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/salonflow/calendar-sync/libs/redisx"
	"github.com/salonflow/calendar-sync/services/calendar-service/internal/model"
)

type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewPublisher(rdb *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

func (p *Publisher) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	channel := redisx.ChangeChannel(ev.SalonID, ev.Table)
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return err
	}
	p.logger.Debug("change published", "channel", channel, "kind", ev.Kind, "record_id", ev.ID)
	return nil
}

package kafka

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

type AccessEventHandler func(ctx context.Context, ev models.AccessEvent)

// HandleAccessEvents decodes access-control records and runs handle for
// each one in arrival order. Undecodable records are logged and skipped.
// It returns when msgs is closed or ctx is cancelled.
func HandleAccessEvents(ctx context.Context, msgs <-chan Message, handle AccessEventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev models.AccessEvent
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				slog.Warn("kafka: malformed access event skipped", "key", string(msg.Key), "error", err)
				msg.Ack()
				continue
			}
			if ev.DoorID == "" && len(msg.Key) > 0 {
				ev.DoorID = string(msg.Key)
			}
			handle(ctx, ev)
			msg.Ack()
		}
	}
}

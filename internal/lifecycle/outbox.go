package lifecycle

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/model"
)

// outbox collects the events of one transaction. It is discarded when the
// transaction fails, so nothing is published for rolled-back work.
type outbox struct {
	events []model.LifecycleEvent
}

func (o *outbox) reset() {
	o.events = o.events[:0]
}

func (o *outbox) emit(eventType, protocolID, entityID string, data map[string]any) {
	o.events = append(o.events, model.LifecycleEvent{
		Type:       eventType,
		ProtocolID: protocolID,
		EntityID:   entityID,
		Data:       data,
	})
}

// flush stamps, records and publishes committed events. Publish failures are
// logged and counted; the transition itself has already succeeded.
func (c *core) flush(ctx context.Context, ob *outbox) {
	if len(ob.events) == 0 {
		return
	}
	logger := observability.RequestLogger(ctx, c.logger)
	actor := model.ActorFrom(ctx)
	now := c.now()

	for _, ev := range ob.events {
		ev.ID = uuid.New().String()
		ev.ActorID = actor
		ev.Timestamp = now

		c.record(ev)
		logger.Info("lifecycle transition",
			zap.String("event", ev.Type),
			zap.String("protocol_id", ev.ProtocolID),
			zap.String("entity_id", ev.EntityID),
		)

		if err := c.publisher.Publish(ctx, ev); err != nil {
			c.metrics.RecordEventPublishFailure(ev.Type)
			logger.Warn("event publish failed",
				zap.String("event", ev.Type),
				zap.String("protocol_id", ev.ProtocolID),
				zap.Error(err),
			)
		}
	}
}

// record maps an event onto the matching business metric.
func (c *core) record(ev model.LifecycleEvent) {
	str := func(key string) string {
		s, _ := ev.Data[key].(string)
		return s
	}

	switch {
	case ev.Type == model.EventWorkflowApplied:
		c.metrics.RecordWorkflowApplied(str("moduleType"))
	case ev.Type == model.EventProtocolCompleted:
		onTime, _ := ev.Data["onTime"].(bool)
		c.metrics.RecordProtocolCompleted(str("moduleType"), onTime)
	case strings.HasPrefix(ev.Type, "stage."):
		c.metrics.RecordStageTransition(str("status"))
	case strings.HasPrefix(ev.Type, "pending."):
		c.metrics.RecordPendingTransition(str("status"))
	case strings.HasPrefix(ev.Type, "sla."):
		c.metrics.RecordSLAOperation(strings.TrimPrefix(ev.Type, "sla."))
	}
}

//go:generate go run go.uber.org/mock/mockgen -source=consumer.go -destination=../../mocks/mock_consumer.go -package=mocks
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"support-hub/contract"
	"support-hub/domain"
	"support-hub/notify"
	"support-hub/observability"
)

// MessageReader is the slice of kafka.Reader the consumer depends on.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TopicConsumer pulls events from one bus topic, renders them into
// notifications and routes them to the event's user. One consumer per topic;
// ordering holds within a topic partition only, never across topics.
//
// Consumption is at-least-once: the offset is committed only after the
// delivery store append succeeded, so a crash in between redelivers the
// event. Duplicate notifications on redelivery are tolerated; no dedup id is
// assigned.
type TopicConsumer struct {
	log      *slog.Logger
	topic    notify.Topic
	reader   MessageReader
	renderer *notify.Renderer
	router   contract.IRouter
	monitor  *observability.Monitor
}

func NewTopicConsumer(log *slog.Logger, topic notify.Topic, reader MessageReader,
	renderer *notify.Renderer, router contract.IRouter,
	monitor *observability.Monitor) *TopicConsumer {
	return &TopicConsumer{
		log:      log,
		topic:    topic,
		reader:   reader,
		renderer: renderer,
		router:   router,
		monitor:  monitor,
	}
}

// NewReader builds the kafka reader for a topic with the shared consumer
// group, mirroring one logical consumer per topic partition.
func NewReader(brokers []string, groupID string, topic notify.Topic) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   string(topic),
	})
}

func (w *TopicConsumer) Run(ctx context.Context) error {
	w.log.Info("Starting topic consumer", "topic", string(w.topic))
	defer func() {
		if err := w.reader.Close(); err != nil {
			w.log.Warn("Reader close failed", "topic", string(w.topic), "error", err)
		}
	}()

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			w.log.Debug("Stopping worker", "topic", string(w.topic))
			return ctx.Err()
		}
		if err != nil {
			// Broker hiccup: hand the error to the supervisor, which
			// restarts the consumer. Nothing was committed, nothing is lost.
			return fmt.Errorf("fetch from %s: %w", w.topic, err)
		}

		w.monitor.IncrEventsConsumed()
		if err := w.process(ctx, msg); err != nil {
			// Store append failed: do NOT commit, the event must come back.
			w.log.Error("Delivery failed, event left uncommitted",
				"topic", string(w.topic),
				"offset", msg.Offset,
				"error", err)
			return err
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A lost commit only means redelivery later; keep consuming.
			w.log.Warn("Commit failed", "topic", string(w.topic), "offset", msg.Offset, "error", err)
		}
	}
}

// process renders and delivers one event. A malformed event never fails the
// loop: it is logged, counted and dropped, because it cannot succeed on
// redelivery either. Only store unavailability propagates.
func (w *TopicConsumer) process(ctx context.Context, msg kafka.Message) error {
	rec, err := notify.ParseRecord(msg.Value)
	if err != nil {
		w.monitor.IncrEventsMalformed()
		w.log.Warn("Malformed event skipped",
			"topic", string(w.topic),
			"offset", msg.Offset,
			"error", err)
		return nil
	}

	if rec.UserID == "" {
		// No target identity means nowhere to store the fallback either.
		w.monitor.IncrEventsMalformed()
		w.log.Warn("Event without userId skipped",
			"topic", string(w.topic),
			"offset", msg.Offset,
			"subtype", rec.Subtype)
		return nil
	}

	notification, ok := w.renderer.Render(w.topic, rec)
	if !ok {
		w.monitor.IncrEventsMalformed()
		w.log.Warn("Unclassifiable topic", "topic", string(w.topic))
		return nil
	}

	return w.router.Deliver(ctx,
		contract.Target{Identity: rec.UserID},
		domain.ConversationFor(rec.UserID),
		domain.NewNotificationEntry(notification))
}

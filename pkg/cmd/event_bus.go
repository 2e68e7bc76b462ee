package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/nodegraph/pkg/channels/gochannel"
	"github.com/dukex/nodegraph/pkg/channels/kafka"
	"github.com/dukex/nodegraph/pkg/eventbus"
)

// NewEventBus builds the bus graph and execution events travel on.
// brokers is only read by the kafka provider.
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	case "kafka":
		list, err := kafka.Brokers(brokers)
		if err != nil {
			return nil, err
		}

		pub, sub, err := kafka.CreateChannel(wlogger, "nodegraph", list)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil

	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}

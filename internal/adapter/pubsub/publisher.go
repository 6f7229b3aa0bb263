package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/estately/presence-relay/config"
	"github.com/google/uuid"
)

const (
	DriverNone      = "none"
	DriverGoChannel = "gochannel"
	DriverAMQP      = "amqp"
)

// Topics is the routing table shared by the dispatcher and the inbound consumer.
type Topics struct {
	PresenceChanged string
	MessageRelayed  string
	// MessagePush carries server-originated envelopes for local delivery.
	MessagePush       string
	MessagePushPoison string
}

func NewTopics(prefix string) Topics {
	return Topics{
		PresenceChanged:   prefix + ".presence.changed",
		MessageRelayed:    prefix + ".message.relayed",
		MessagePush:       prefix + ".message.push",
		MessagePushPoison: prefix + ".message.push.poison",
	}
}

// Bus is the pair of watermill endpoints for the configured driver. Both are
// nil for the none driver.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (b Bus) Enabled() bool { return b.Publisher != nil }

// NewBus builds the endpoints for the configured driver. The gochannel driver
// uses one in-process instance for both sides.
func NewBus(cfg *config.Config, logger watermill.LoggerAdapter) (Bus, error) {
	switch cfg.Events.Driver {
	case DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: int64(cfg.Events.BufferSize),
		}, logger)
		return Bus{Publisher: ch, Subscriber: ch}, nil

	case DriverAMQP:
		pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(cfg.Events.AMQPURL, nil), logger)
		if err != nil {
			return Bus{}, fmt.Errorf("amqp publisher: %w", err)
		}

		// [UNIQUE_NODE_QUEUE] every node needs its own copy of push messages:
		// only the node holding the receiver's connection can deliver.
		instanceID := uuid.NewString()[:8]
		subCfg := amqp.NewDurablePubSubConfig(cfg.Events.AMQPURL,
			amqp.GenerateQueueNameTopicNameWithSuffix("presence-relay."+instanceID))
		sub, err := amqp.NewSubscriber(subCfg, logger)
		if err != nil {
			_ = pub.Close()
			return Bus{}, fmt.Errorf("amqp subscriber: %w", err)
		}
		return Bus{Publisher: pub, Subscriber: sub}, nil

	default:
		return Bus{}, nil
	}
}

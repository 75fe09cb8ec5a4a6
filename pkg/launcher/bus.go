package launcher

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

// TopicServiceState carries every service state transition. Dependents
// subscribe to it instead of polling dependency state.
const TopicServiceState = "stackctl.service.state"

// Bus is the in-memory pub/sub for service state transitions.
type Bus struct {
	pubsub *gochannel.GoChannel
}

func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1024}, watermill.NopLogger{}),
	}
}

func (b *Bus) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubsub.Publish(TopicServiceState, msg)
}

// Subscribe returns the transition stream; the subscription ends with ctx.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicServiceState)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}
	return msgs, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// DecodeEvent unmarshals a bus message back into an Event.
func DecodeEvent(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "unmarshal event")
	}
	return ev, nil
}

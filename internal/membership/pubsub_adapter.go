package membership

import (
	"context"

	"github.com/libp2p/go-libp2p-pubsub"
)

// pubsubTopic adapts *pubsub.Topic to the topic interface.
type pubsubTopic struct {
	t *pubsub.Topic
}

func (a *pubsubTopic) Publish(ctx context.Context, data []byte) error {
	return a.t.Publish(ctx, data)
}

// pubsubSubscription adapts *pubsub.Subscription to the subscription
// interface.
type pubsubSubscription struct {
	sub *pubsub.Subscription
}

func (a *pubsubSubscription) Next(ctx context.Context) (gossipEnvelope, error) {
	msg, err := a.sub.Next(ctx)
	if err != nil {
		return gossipEnvelope{}, err
	}
	return gossipEnvelope{data: msg.Data, from: msg.GetFrom()}, nil
}

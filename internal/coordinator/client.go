package coordinator

import (
	"context"
	"errors"

	"socksd/internal/socksaddr"
	"socksd/internal/wire"
)

// ErrNoReply is returned when ctx is cancelled before the coordinator's
// correlated reply arrives.
var ErrNoReply = errors.New("coordinator: no reply before context cancellation")

// subscribeBeforePublish exists to name the ordering spec.md §5's
// backpressure note requires: a handler must begin subscribing before
// publishing its request, or it can miss a reply that arrives between the
// publish and a late subscribe.
func subscribeBeforePublish(bus *Bus, publish func()) chan Message {
	sub := bus.Subscribe()
	publish()
	return sub
}

// FindSession publishes a Request for dest and waits for the correlated
// Reply, returning the matching Session if the coordinator found one.
func FindSession(ctx context.Context, bus *Bus, dest *socksaddr.Destination) (*Session, error) {
	sub := subscribeBeforePublish(bus, func() { bus.Publish(MsgRequest(dest)) })
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil, ErrNoReply
		case msg := <-sub:
			if msg.Kind == KindReply && msg.Dest == dest {
				return msg.Found, nil
			}
		}
	}
}

// ChooseAuthMethod publishes an AuthMethodReq for methods and waits for the
// correlated reply. ok=false means "no acceptable method".
func ChooseAuthMethod(ctx context.Context, bus *Bus, methods *[]wire.AuthMethod) (method wire.AuthMethod, ok bool, err error) {
	sub := subscribeBeforePublish(bus, func() { bus.Publish(MsgAuthMethodReq(methods)) })
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return 0, false, ErrNoReply
		case msg := <-sub:
			if msg.Kind == KindAuthMethodReply && msg.Methods == methods {
				return msg.Chosen, msg.HasChosen, nil
			}
		}
	}
}

// Authenticate publishes an AuthRequest for u and waits for the correlated
// reply.
func Authenticate(ctx context.Context, bus *Bus, u *User) (bool, error) {
	sub := subscribeBeforePublish(bus, func() { bus.Publish(MsgAuthRequest(u)) })
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return false, ErrNoReply
		case msg := <-sub:
			if msg.Kind == KindAuthReply && msg.User == u {
				return msg.Allowed, nil
			}
		}
	}
}

// Package coordinator implements the process-wide session/auth broker
// described in spec.md §4.E: a single long-running goroutine owning the
// active-session list, reachable only through a broadcast Bus.
package coordinator

import (
	"context"

	"go.uber.org/zap"

	"socksd/internal/wire"
)

// Policy is the authentication configuration the coordinator enforces.
type Policy struct {
	RequireAuth bool
	Users       []User
}

// Coordinator owns the active-session list. It must never be mutated by
// anyone other than the single goroutine running Run.
type Coordinator struct {
	bus    *Bus
	policy Policy
	log    *zap.Logger

	sessions []Session

	onSessionCountChanged func(n int)
}

// New creates a Coordinator. onSessionCountChanged, if non-nil, is invoked
// after every SessionStart/SessionEnd with the new active count — the
// metrics gauge hook.
func New(bus *Bus, policy Policy, log *zap.Logger, onSessionCountChanged func(n int)) *Coordinator {
	return &Coordinator{bus: bus, policy: policy, log: log, onSessionCountChanged: onSessionCountChanged}
}

// Run processes messages until ctx is cancelled. It never exits under
// normal operation; spec.md §5 gives the coordinator no cancellation path
// of its own, but Run still honors ctx, which tests and main's signal
// handling cancel to stop it.
func (c *Coordinator) Run(ctx context.Context) {
	sub := c.bus.Subscribe()
	defer c.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			c.handle(msg)
		}
	}
}

func (c *Coordinator) handle(msg Message) {
	switch msg.Kind {
	case KindSessionStart:
		c.sessions = append(c.sessions, *msg.Session)
		c.notifyCount()

	case KindSessionEnd:
		for i, s := range c.sessions {
			if s == *msg.Session {
				c.sessions[i] = c.sessions[len(c.sessions)-1]
				c.sessions = c.sessions[:len(c.sessions)-1]
				break
			}
		}
		c.notifyCount()

	case KindRequest:
		for i := range c.sessions {
			if c.sessions[i].Destination == *msg.Dest {
				found := c.sessions[i]
				c.bus.Publish(MsgReply(msg.Dest, &found))
				return
			}
		}
		c.bus.Publish(MsgReply(msg.Dest, nil))

	case KindAuthMethodReq:
		c.bus.Publish(c.resolveAuthMethod(msg.Methods))

	case KindAuthRequest:
		allowed := false
		for _, u := range c.policy.Users {
			if u == *msg.User {
				allowed = true
				break
			}
		}
		c.bus.Publish(MsgAuthReply(msg.User, allowed))

	case KindReply, KindAuthMethodReply, KindAuthReply:
		// coordinator -> handlers only; nothing to do if the coordinator
		// ever observes its own reply come back around the bus.
	}
}

func (c *Coordinator) resolveAuthMethod(methods *[]wire.AuthMethod) Message {
	has := func(m wire.AuthMethod) bool {
		for _, v := range *methods {
			if v == m {
				return true
			}
		}
		return false
	}

	if !c.policy.RequireAuth && has(wire.AuthNone) {
		return MsgAuthMethodReply(methods, wire.AuthNone, true)
	}
	if c.policy.RequireAuth && has(wire.AuthUserPass) {
		return MsgAuthMethodReply(methods, wire.AuthUserPass, true)
	}
	return MsgAuthMethodReply(methods, 0, false)
}

func (c *Coordinator) notifyCount() {
	if c.onSessionCountChanged != nil {
		c.onSessionCountChanged(len(c.sessions))
	}
}

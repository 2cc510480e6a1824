package coordinator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"socksd/internal/socksaddr"
	"socksd/internal/wire"
)

func testCoordinator(t *testing.T, policy Policy) (*Bus, func()) {
	t.Helper()
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	c := New(bus, policy, zap.NewNop(), nil)
	go c.Run(ctx)
	return bus, cancel
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionStartThenRequestFindsSession(t *testing.T) {
	bus, cancel := testCoordinator(t, Policy{})
	defer cancel()

	dest := socksaddr.Destination{Addr: socksaddr.IPv4([4]byte{1, 2, 3, 4}), Port: 22}
	session := Session{Destination: dest, Client2Server: "a:1", Server2Client: "b:2", Server2Remote: "c:3", Remote2Server: "d:4"}

	bus.Publish(MsgSessionStart(session))
	time.Sleep(20 * time.Millisecond) // let the coordinator goroutine drain its subscription

	found, err := FindSession(withTimeout(t), bus, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || *found != session {
		t.Fatalf("found = %+v, want %+v", found, session)
	}
}

func TestRequestForUnknownDestinationReturnsNil(t *testing.T) {
	bus, cancel := testCoordinator(t, Policy{})
	defer cancel()

	dest := socksaddr.Destination{Addr: socksaddr.IPv4([4]byte{9, 9, 9, 9}), Port: 1}
	found, err := FindSession(withTimeout(t), bus, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != nil {
		t.Fatalf("found = %+v, want nil", found)
	}
}

func TestSessionEndRemovesSession(t *testing.T) {
	bus, cancel := testCoordinator(t, Policy{})
	defer cancel()

	dest := socksaddr.Destination{Addr: socksaddr.IPv4([4]byte{5, 5, 5, 5}), Port: 80}
	session := Session{Destination: dest}

	bus.Publish(MsgSessionStart(session))
	time.Sleep(20 * time.Millisecond)
	bus.Publish(MsgSessionEnd(session))
	time.Sleep(20 * time.Millisecond)

	found, err := FindSession(withTimeout(t), bus, &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != nil {
		t.Fatalf("found = %+v, want nil after SessionEnd", found)
	}
}

func TestChooseAuthMethod_NoAuthPolicy(t *testing.T) {
	bus, cancel := testCoordinator(t, Policy{RequireAuth: false})
	defer cancel()

	methods := []wire.AuthMethod{wire.AuthNone, wire.AuthUserPass}
	method, ok, err := ChooseAuthMethod(withTimeout(t), bus, &methods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || method != wire.AuthNone {
		t.Fatalf("got (%v,%v), want (NoAuth,true)", method, ok)
	}
}

func TestChooseAuthMethod_RequireAuthPolicy(t *testing.T) {
	bus, cancel := testCoordinator(t, Policy{RequireAuth: true})
	defer cancel()

	methods := []wire.AuthMethod{wire.AuthNone, wire.AuthUserPass}
	method, ok, err := ChooseAuthMethod(withTimeout(t), bus, &methods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || method != wire.AuthUserPass {
		t.Fatalf("got (%v,%v), want (UserPass,true)", method, ok)
	}
}

func TestChooseAuthMethod_GSSAPIOnly_NoAcceptable(t *testing.T) {
	bus, cancel := testCoordinator(t, Policy{RequireAuth: false})
	defer cancel()

	methods := []wire.AuthMethod{} // GSSAPI filtered out upstream by the codec
	_, ok, err := ChooseAuthMethod(withTimeout(t), bus, &methods)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no acceptable method")
	}
}

func TestAuthenticate(t *testing.T) {
	bus, cancel := testCoordinator(t, Policy{Users: []User{{Name: "alice", Pass: "secret"}}})
	defer cancel()

	good := User{Name: "alice", Pass: "secret"}
	ok, err := Authenticate(withTimeout(t), bus, &good)
	if err != nil || !ok {
		t.Fatalf("expected alice:secret to authenticate, got ok=%v err=%v", ok, err)
	}

	bad := User{Name: "alice", Pass: "wrong"}
	ok, err = Authenticate(withTimeout(t), bus, &bad)
	if err != nil || ok {
		t.Fatalf("expected alice:wrong to fail, got ok=%v err=%v", ok, err)
	}
}

func TestCorrelationIgnoresUnrelatedReplies(t *testing.T) {
	// Two concurrent requests for different destinations must each get
	// their own reply, not cross-talk, since correlation is by pointer
	// identity of the Destination each published.
	bus, cancel := testCoordinator(t, Policy{})
	defer cancel()

	destA := socksaddr.Destination{Addr: socksaddr.IPv4([4]byte{1, 1, 1, 1}), Port: 1}
	destB := socksaddr.Destination{Addr: socksaddr.IPv4([4]byte{2, 2, 2, 2}), Port: 2}
	sessionB := Session{Destination: destB}
	bus.Publish(MsgSessionStart(sessionB))
	time.Sleep(20 * time.Millisecond)

	resultCh := make(chan *Session, 2)
	go func() {
		found, _ := FindSession(withTimeout(t), bus, &destA)
		resultCh <- found
	}()
	go func() {
		found, _ := FindSession(withTimeout(t), bus, &destB)
		resultCh <- found
	}()

	var gotNil, gotB bool
	for i := 0; i < 2; i++ {
		r := <-resultCh
		if r == nil {
			gotNil = true
		} else if *r == sessionB {
			gotB = true
		}
	}
	if !gotNil || !gotB {
		t.Fatalf("expected one nil and one sessionB result, gotNil=%v gotB=%v", gotNil, gotB)
	}
}

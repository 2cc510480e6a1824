package coordinator

import (
	"socksd/internal/socksaddr"
	"socksd/internal/wire"
)

// Message is the tagged union carried on the Bus. Exactly one constructor
// below is used per message; Kind discriminates which fields are valid.
//
// Correlation across the broadcast bus is by pointer identity: a handler
// that publishes a Request holds on to the *socksaddr.Destination it sent
// and only accepts a Reply carrying that same pointer, per spec.md §9.
type Kind int

const (
	KindSessionStart Kind = iota
	KindSessionEnd
	KindRequest
	KindReply
	KindAuthMethodReq
	KindAuthMethodReply
	KindAuthRequest
	KindAuthReply
)

type Message struct {
	Kind Kind

	Session *Session // SessionStart, SessionEnd

	Dest    *socksaddr.Destination // Request, Reply (correlation key)
	Found   *Session               // Reply: the matching session, or nil

	Methods   *[]wire.AuthMethod // AuthMethodReq, AuthMethodReply (correlation key)
	Chosen    wire.AuthMethod    // AuthMethodReply
	HasChosen bool               // AuthMethodReply: false means "no acceptable method"

	User    *User // AuthRequest, AuthReply (correlation key)
	Allowed bool  // AuthReply
}

func MsgSessionStart(s Session) Message { return Message{Kind: KindSessionStart, Session: &s} }
func MsgSessionEnd(s Session) Message   { return Message{Kind: KindSessionEnd, Session: &s} }

func MsgRequest(dest *socksaddr.Destination) Message {
	return Message{Kind: KindRequest, Dest: dest}
}

func MsgReply(dest *socksaddr.Destination, found *Session) Message {
	return Message{Kind: KindReply, Dest: dest, Found: found}
}

func MsgAuthMethodReq(methods *[]wire.AuthMethod) Message {
	return Message{Kind: KindAuthMethodReq, Methods: methods}
}

func MsgAuthMethodReply(methods *[]wire.AuthMethod, chosen wire.AuthMethod, has bool) Message {
	return Message{Kind: KindAuthMethodReply, Methods: methods, Chosen: chosen, HasChosen: has}
}

func MsgAuthRequest(u *User) Message {
	return Message{Kind: KindAuthRequest, User: u}
}

func MsgAuthReply(u *User, allowed bool) Message {
	return Message{Kind: KindAuthReply, User: u, Allowed: allowed}
}

package domain

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

type MessageType string

const (
	MsgJoin            MessageType = "join"
	MsgLeave           MessageType = "leave"
	MsgCursor          MessageType = "cursor"
	MsgStrokeBegin     MessageType = "stroke-begin"
	MsgStrokeExtend    MessageType = "stroke-extend"
	MsgStrokeEnd       MessageType = "stroke-end"
	MsgShapeUpsert     MessageType = "shape-upsert"
	MsgShapesDeleted   MessageType = "shapes-deleted"
	MsgFullSync        MessageType = "full-sync"
	MsgFullSyncRequest MessageType = "full-sync-request"
	MsgPresence        MessageType = "presence"
	MsgOffer           MessageType = "offer"
	MsgAnswer          MessageType = "answer"
	MsgIceCandidate    MessageType = "ice-candidate"
	MsgRoomJoined      MessageType = "room-joined"
	MsgRoomUpdated     MessageType = "room-updated"
	MsgRoomError       MessageType = "room-error"
	MsgError           MessageType = "error"
)

// Message is the wire envelope: a type discriminator plus a payload
// object, one message per websocket frame.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(t MessageType, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Message{Type: t, Payload: raw}, nil
}

// MustMessage panics on marshal failure. Payload structs below contain
// nothing unmarshalable, so callers building messages from them use this.
func MustMessage(t MessageType, payload any) Message {
	msg, err := NewMessage(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

type JoinPayload struct {
	User User   `json:"user"`
	Room string `json:"room"`
}

type LeavePayload struct {
	UserID string `json:"userId"`
}

type CursorPayload struct {
	UserID string `json:"userId"`
	Point  Point  `json:"point"`
}

// StrokeBeginPayload carries the authoring shape's id and style so the
// remote replay commits under the same id the author will reconcile.
type StrokeBeginPayload struct {
	UserID  string     `json:"userId"`
	ShapeID string     `json:"shapeId"`
	Kind    ShapeKind  `json:"kind"`
	Point   Point      `json:"point"`
	Style   ShapeStyle `json:"style"`
}

type StrokeExtendPayload struct {
	UserID string `json:"userId"`
	Point  Point  `json:"point"`
}

type StrokeEndPayload struct {
	UserID string `json:"userId"`
}

type ShapeUpsertPayload struct {
	UserID string `json:"userId"`
	Shape  Shape  `json:"shape"`
}

type ShapesDeletedPayload struct {
	UserID string   `json:"userId"`
	IDs    []string `json:"ids"`
}

// FullSyncPayload is the donor's answer to a full-sync-request. For
// names the requester so the hub routes the answer to that member
// alone instead of fanning it out.
type FullSyncPayload struct {
	UserID string  `json:"userId"`
	For    string  `json:"for,omitempty"`
	Shapes []Shape `json:"shapes"`
	Users  []User  `json:"users,omitempty"`
}

type FullSyncRequestPayload struct {
	UserID string `json:"userId"`
}

type PresencePayload struct {
	User User `json:"user"`
}

// SignalPayload carries WebRTC negotiation data relayed between two
// specific peers. Exactly one of SDP or Candidate is set.
type SignalPayload struct {
	From      string                     `json:"from"`
	To        string                     `json:"to"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type RoomJoinedPayload struct {
	RoomID   string `json:"roomId"`
	JoinCode string `json:"joinCode"`
	You      User   `json:"you"`
	Members  []User `json:"members"`
}

type RoomUpdatedPayload struct {
	RoomID  string `json:"roomId"`
	Members []User `json:"members"`
}

type RoomErrorPayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// SenderID extracts the originating user id for the message types that
// carry one. Types without a sender (full-sync-request aside, mostly
// room management) return the empty string.
func (m *Message) SenderID() string {
	switch m.Type {
	case MsgJoin:
		var p JoinPayload
		if m.DecodePayload(&p) == nil {
			return p.User.ID
		}
	case MsgLeave:
		var p LeavePayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgCursor:
		var p CursorPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgStrokeBegin:
		var p StrokeBeginPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgStrokeExtend:
		var p StrokeExtendPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgStrokeEnd:
		var p StrokeEndPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgShapeUpsert:
		var p ShapeUpsertPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgShapesDeleted:
		var p ShapesDeletedPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgFullSync:
		var p FullSyncPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgFullSyncRequest:
		var p FullSyncRequestPayload
		if m.DecodePayload(&p) == nil {
			return p.UserID
		}
	case MsgPresence:
		var p PresencePayload
		if m.DecodePayload(&p) == nil {
			return p.User.ID
		}
	case MsgOffer, MsgAnswer, MsgIceCandidate:
		var p SignalPayload
		if m.DecodePayload(&p) == nil {
			return p.From
		}
	}
	return ""
}

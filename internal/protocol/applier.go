package protocol

import (
	"log/slog"

	"github.com/tahababou12/CoCo-sub000/internal/canvas"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
	"github.com/tahababou12/CoCo-sub000/internal/presence"
	"github.com/tahababou12/CoCo-sub000/lib/logger/sl"
)

// SignalHandler consumes relayed WebRTC negotiation messages. The rtc
// manager implements it; a session without media passes nil.
type SignalHandler interface {
	HandleOffer(from string, sdp domain.SignalPayload) error
	HandleAnswer(from string, sdp domain.SignalPayload) error
	HandleCandidate(from string, sdp domain.SignalPayload) error
	PeerLeft(userID string)
}

// Applier routes inbound messages into state-machine commands. It
// drops any message originating from the local user (no self-echo),
// with the single exception of full-sync, which always applies.
type Applier struct {
	userID   string
	board    *canvas.Board
	presence *presence.Tracker
	signals  SignalHandler
	log      *slog.Logger

	// Answers a full-sync-request from a peer with our shape list.
	fullSyncReply SendFunc
}

func NewApplier(userID string, board *canvas.Board, tracker *presence.Tracker, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{
		userID:   userID,
		board:    board,
		presence: tracker,
		log:      log,
	}
}

// SetSignalHandler wires the media negotiation consumer.
func (a *Applier) SetSignalHandler(h SignalHandler) { a.signals = h }

// SetFullSyncReply wires the sender used to answer sync requests.
func (a *Applier) SetFullSyncReply(send SendFunc) { a.fullSyncReply = send }

// Apply decodes one inbound message and dispatches it. Unknown types
// are logged and ignored; nothing here is fatal.
func (a *Applier) Apply(msg domain.Message) error {
	if sender := msg.SenderID(); sender == a.userID && msg.Type != domain.MsgFullSync {
		return nil
	}

	switch msg.Type {
	case domain.MsgJoin:
		var p domain.JoinPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.presence.Update(p.User)

	case domain.MsgLeave:
		var p domain.LeavePayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.presence.Remove(p.UserID)
		a.board.DropRemoteAuthor(p.UserID)
		if a.signals != nil {
			a.signals.PeerLeft(p.UserID)
		}

	case domain.MsgCursor:
		var p domain.CursorPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.presence.UpdateCursor(p.UserID, p.Point)

	case domain.MsgStrokeBegin:
		var p domain.StrokeBeginPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.board.RemoteStrokeBegin(p.UserID, domain.Shape{
			ID:        p.ShapeID,
			Kind:      p.Kind,
			Points:    []domain.Point{p.Point},
			Style:     p.Style,
			CreatedBy: p.UserID,
		})

	case domain.MsgStrokeExtend:
		var p domain.StrokeExtendPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.board.RemoteStrokeExtend(p.UserID, p.Point)

	case domain.MsgStrokeEnd:
		var p domain.StrokeEndPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.board.RemoteStrokeEnd(p.UserID)

	case domain.MsgShapeUpsert:
		var p domain.ShapeUpsertPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.board.ApplyRemoteUpsert(p.Shape)

	case domain.MsgShapesDeleted:
		var p domain.ShapesDeletedPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.board.ApplyRemoteDelete(p.IDs)

	case domain.MsgFullSync:
		var p domain.FullSyncPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if p.For != "" && p.For != a.userID {
			return nil
		}
		a.board.ApplyFullSync(p.Shapes)
		for _, u := range p.Users {
			if u.ID != a.userID {
				a.presence.Update(u)
			}
		}

	case domain.MsgFullSyncRequest:
		var p domain.FullSyncRequestPayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		if a.fullSyncReply != nil {
			a.fullSyncReply(domain.MustMessage(domain.MsgFullSync, domain.FullSyncPayload{
				UserID: a.userID,
				For:    p.UserID,
				Shapes: a.board.Shapes(),
			}))
		}

	case domain.MsgPresence:
		var p domain.PresencePayload
		if err := msg.DecodePayload(&p); err != nil {
			return err
		}
		a.presence.Update(p.User)

	case domain.MsgOffer, domain.MsgAnswer, domain.MsgIceCandidate:
		return a.applySignal(msg)

	case domain.MsgRoomUpdated, domain.MsgRoomJoined:
		// Room management is handled during connect; later updates only
		// matter to the lobby, which is outside this engine.

	case domain.MsgError, domain.MsgRoomError:
		var p domain.ErrorPayload
		if msg.DecodePayload(&p) == nil {
			a.log.Warn("server reported error", slog.String("message", p.Message))
		}

	default:
		// Forward compatibility: never fatal.
		a.log.Warn("unknown message type ignored", slog.String("type", string(msg.Type)))
	}

	return nil
}

func (a *Applier) applySignal(msg domain.Message) error {
	var p domain.SignalPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	if p.To != "" && p.To != a.userID {
		return nil
	}
	if a.signals == nil {
		return nil
	}

	var err error
	switch msg.Type {
	case domain.MsgOffer:
		err = a.signals.HandleOffer(p.From, p)
	case domain.MsgAnswer:
		err = a.signals.HandleAnswer(p.From, p)
	case domain.MsgIceCandidate:
		err = a.signals.HandleCandidate(p.From, p)
	}
	if err != nil {
		// A failed negotiation closes one peer link; the room and the
		// shape stream are unaffected.
		a.log.Error("signal handling failed",
			slog.String("type", string(msg.Type)),
			slog.String("from", p.From),
			sl.Err(err),
		)
	}
	return nil
}

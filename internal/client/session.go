// Package client is the engine a drawing frontend embeds: one Session
// per joined room, owning the board state machine, the wire codec and
// the websocket connection to the room hub.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tahababou12/CoCo-sub000/internal/canvas"
	"github.com/tahababou12/CoCo-sub000/internal/domain"
	"github.com/tahababou12/CoCo-sub000/internal/presence"
	"github.com/tahababou12/CoCo-sub000/internal/protocol"
	"github.com/tahababou12/CoCo-sub000/lib/logger/sl"
)

// DefaultFlushInterval is one frame at 60fps; cursor and stroke-extend
// traffic is coalesced to this rate.
const DefaultFlushInterval = 16 * time.Millisecond

var ErrSessionClosed = errors.New("session is closed")

type Options struct {
	// WSURL is the hub base, e.g. "ws://localhost:8080".
	WSURL  string
	RoomID string
	Name   string
	// UserID is optional; the hub accepts a client-assigned id so a
	// reconnect can keep its identity.
	UserID string

	FlushInterval  time.Duration
	ReconcileDelay time.Duration
	Logger         *slog.Logger
}

// Session is one member's live connection to a room. All board access
// goes through the session mutex: the frontend calls the command
// wrappers from its UI goroutine while the read loop applies remote
// mutations concurrently.
type Session struct {
	log  *slog.Logger
	conn *websocket.Conn

	you      domain.User
	roomID   string
	joinCode string

	mu         sync.Mutex
	board      *canvas.Board
	tracker    *presence.Tracker
	encoder    *protocol.Encoder
	applier    *protocol.Applier
	reconciler *protocol.Reconciler

	outbound  chan domain.Message
	done      chan struct{}
	closeOnce sync.Once

	flushInterval time.Duration
}

// Dial connects to the room's websocket endpoint, waits for the join
// envelope and starts the read, write and flush loops.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	const op = "client.session.dial"
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("op", op))

	endpoint, err := joinURL(opts)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var envelope domain.Message
	if err := conn.ReadJSON(&envelope); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: read join envelope: %w", op, err)
	}
	if envelope.Type == domain.MsgRoomError {
		var p domain.RoomErrorPayload
		_ = envelope.DecodePayload(&p)
		conn.Close()
		return nil, fmt.Errorf("%s: join rejected: %s", op, p.Message)
	}
	if envelope.Type != domain.MsgRoomJoined {
		conn.Close()
		return nil, fmt.Errorf("%s: unexpected first message %q", op, envelope.Type)
	}

	var joined domain.RoomJoinedPayload
	if err := envelope.DecodePayload(&joined); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Session{
		log:           log.With(slog.String("user_id", joined.You.ID)),
		conn:          conn,
		you:           joined.You,
		roomID:        joined.RoomID,
		joinCode:      joined.JoinCode,
		board:         canvas.NewBoard(joined.You.ID),
		tracker:       presence.NewTracker(),
		outbound:      make(chan domain.Message, 256),
		done:          make(chan struct{}),
		flushInterval: opts.FlushInterval,
	}
	if s.flushInterval <= 0 {
		s.flushInterval = DefaultFlushInterval
	}

	s.encoder = protocol.NewEncoder(joined.You.ID, s.enqueue)
	s.board.SetObserver(s.encoder)
	s.applier = protocol.NewApplier(joined.You.ID, s.board, s.tracker, s.log)
	s.applier.SetFullSyncReply(s.enqueue)
	s.reconciler = protocol.NewReconciler(joined.You.ID, opts.ReconcileDelay, s.lookupShape, s.enqueue)

	for _, u := range joined.Members {
		if u.ID != joined.You.ID {
			s.tracker.Update(u)
		}
	}

	go s.writeLoop()
	go s.readLoop()
	go s.flushLoop()

	// Catch up on shape history from whoever already has it.
	if len(joined.Members) > 1 {
		s.RequestFullSync()
	}

	s.log.Info("joined room",
		slog.String("room_id", s.roomID),
		slog.Int("quadrant", joined.You.Quadrant),
	)
	return s, nil
}

func joinURL(opts Options) (string, error) {
	if opts.WSURL == "" || opts.RoomID == "" {
		return "", errors.New("ws url and room id are required")
	}
	base, err := url.Parse(opts.WSURL)
	if err != nil {
		return "", fmt.Errorf("parse ws url: %w", err)
	}
	base.Path = fmt.Sprintf("/api/rooms/%s/ws", opts.RoomID)
	q := base.Query()
	q.Set("name", opts.Name)
	if opts.UserID != "" {
		q.Set("user_id", opts.UserID)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// SetSignalHandler wires a media negotiation consumer, normally the
// rtc manager. Must be called before signal traffic is expected.
func (s *Session) SetSignalHandler(h protocol.SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applier.SetSignalHandler(h)
}

// SendSignal relays one negotiation message to a specific peer via
// the hub. Implements the rtc package's sender contract.
func (s *Session) SendSignal(t domain.MessageType, p domain.SignalPayload) error {
	p.From = s.you.ID
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	s.enqueue(domain.MustMessage(t, p))
	return nil
}

func (s *Session) You() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.you
}
func (s *Session) RoomID() string   { return s.roomID }
func (s *Session) JoinCode() string { return s.joinCode }

// Peers snapshots the presence of every other room member.
func (s *Session) Peers() []domain.User { return s.tracker.Snapshot() }

func (s *Session) SetTool(tool canvas.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.SetTool(tool)
}

func (s *Session) SetStyle(style domain.ShapeStyle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.SetStyle(style)
}

func (s *Session) BeginStroke(point domain.Point) (*domain.Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.BeginStroke(point)
}

func (s *Session) ExtendStroke(point domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.ExtendStroke(point)
}

// EndStroke commits the active shape and schedules its reconciliation
// resend.
func (s *Session) EndStroke() (*domain.Shape, error) {
	s.mu.Lock()
	shape, err := s.board.EndStroke()
	s.mu.Unlock()
	if err == nil && shape != nil {
		s.reconciler.ShapeCommitted(shape.ID)
	}
	return shape, err
}

func (s *Session) DiscardCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.DiscardCurrent()
}

func (s *Session) InsertText(anchor domain.Point, text string) *domain.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.InsertText(anchor, text)
}

func (s *Session) PlaceImage(a, c domain.Point, ref string) *domain.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.PlaceImage(a, c, ref)
}

func (s *Session) SelectBox(a, c domain.Point) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.SelectBox(a, c)
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.ClearSelection()
}

func (s *Session) DeleteSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.DeleteSelection()
}

func (s *Session) DeleteShapes(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.DeleteShapes(ids)
}

func (s *Session) EraseAt(point domain.Point, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.EraseAt(point, threshold)
}

func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.ClearAll()
}

func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Undo()
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Redo()
}

func (s *Session) Pan(dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.Pan(dx, dy)
}

func (s *Session) ZoomAt(factor float64, center domain.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.ZoomAt(factor, center)
}

func (s *Session) View() canvas.ViewTransform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.View()
}

// Shapes snapshots the committed shape list in z-order.
func (s *Session) Shapes() []domain.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Shapes()
}

func (s *Session) Shape(id string) (domain.Shape, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Shape(id)
}

// Current returns the shape being authored locally, nil if none.
func (s *Session) Current() *domain.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Current()
}

// RemoteCurrent returns a remote author's in-flight stroke, nil if none.
func (s *Session) RemoteCurrent(userID string) *domain.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.RemoteCurrent(userID)
}

// MoveCursor records the local cursor for the next coalesced flush.
func (s *Session) MoveCursor(point domain.Point) {
	s.encoder.CursorMoved(point)
}

// UpdatePresence announces a gesture-mode or capability change.
func (s *Session) UpdatePresence(mutate func(u *domain.User)) {
	s.mu.Lock()
	mutate(&s.you)
	user := *s.you.Clone()
	s.mu.Unlock()
	s.encoder.PresenceChanged(user)
}

// RequestFullSync asks the room for the authoritative shape list. The
// hub forwards the request to a single donor peer.
func (s *Session) RequestFullSync() {
	s.enqueue(domain.MustMessage(domain.MsgFullSyncRequest, domain.FullSyncRequestPayload{
		UserID: s.you.ID,
	}))
}

// Close announces the leave, stops the loops and drops the connection.
// Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.reconciler.Close()
		leave := domain.MustMessage(domain.MsgLeave, domain.LeavePayload{UserID: s.you.ID})
		select {
		case s.outbound <- leave:
		default:
		}
		close(s.done)
		// Give the write loop a moment to drain the leave.
		time.Sleep(10 * time.Millisecond)
		s.conn.Close()
	})
	return nil
}

func (s *Session) lookupShape(id string) (domain.Shape, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Shape(id)
}

// enqueue hands a message to the write loop. Blocking here would stall
// a board command, so a full queue drops the message; reconciliation
// covers the loss.
func (s *Session) enqueue(msg domain.Message) {
	select {
	case s.outbound <- msg:
	case <-s.done:
	default:
		s.log.Debug("outbound queue full, dropping", slog.String("type", string(msg.Type)))
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case msg := <-s.outbound:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug("write failed", sl.Err(err))
				s.Close()
				return
			}
		case <-s.done:
			// Drain whatever is queued, the leave included.
			for {
				select {
				case msg := <-s.outbound:
					if err := s.conn.WriteJSON(msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) readLoop() {
	for {
		var msg domain.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.log.Info("connection lost", sl.Err(err))
				s.Close()
			}
			return
		}

		s.mu.Lock()
		err := s.applier.Apply(msg)
		s.mu.Unlock()
		if err != nil {
			s.log.Warn("failed to apply message",
				slog.String("type", string(msg.Type)),
				sl.Err(err),
			)
		}
	}
}

func (s *Session) flushLoop() {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.encoder.Flush()
		case <-s.done:
			return
		}
	}
}

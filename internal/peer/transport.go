package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog"
)

var (
	ErrPeerAlreadyConnected = errors.New("a peer is already connected")
	ErrIncompatibleVersion  = errors.New("incompatible peer protocol version")
)

const (
	frameHello   = "hello"
	frameMessage = "message"
	frameContext = "context"
	frameReply   = "reply"

	writeWait     = 10 * time.Second
	handshakeWait = 10 * time.Second
	inboxSize     = 64
)

type frame struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Version string          `json:"version,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// compatible reports whether remote shares local's major version.
func compatible(local *version.Version, remote string) error {
	rv, err := version.NewVersion(remote)
	if err != nil {
		return errors.Wrap(ErrIncompatibleVersion, "peer sent %q", remote)
	}
	major := local.Segments()[0]
	constraint, err := version.NewConstraint(fmt.Sprintf(">= %d.0.0, < %d.0.0", major, major+1))
	if err != nil {
		return err
	}
	if !constraint.Check(rv) {
		return errors.Wrap(ErrIncompatibleVersion, "local %s, peer %s", local.String(), rv.String())
	}
	return nil
}

// session is one live websocket connection to the peer.
type session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	repliesMu sync.Mutex
	replies   map[string]chan json.RawMessage

	inbox chan frame
	done  chan struct{}
	once  sync.Once
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		conn:    conn,
		replies: make(map[string]chan json.RawMessage),
		inbox:   make(chan frame, inboxSize),
		done:    make(chan struct{}),
	}
}

func (s *session) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(f)
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *session) awaitReply(id string) chan json.RawMessage {
	ch := make(chan json.RawMessage, 1)
	s.repliesMu.Lock()
	s.replies[id] = ch
	s.repliesMu.Unlock()
	return ch
}

func (s *session) forgetReply(id string) {
	s.repliesMu.Lock()
	delete(s.replies, id)
	s.repliesMu.Unlock()
}

func (s *session) deliverReply(f frame) {
	s.repliesMu.Lock()
	ch, ok := s.replies[f.ID]
	delete(s.replies, f.ID)
	s.repliesMu.Unlock()
	if ok {
		ch <- f.Payload
	}
}

// link holds what both websocket transports share: handlers, the current
// session and the persisted outgoing context.
type link struct {
	log          zerolog.Logger
	version      *version.Version
	repo         domain.PeerContextRepo
	replyTimeout time.Duration

	mu        sync.RWMutex
	sess      *session
	onMessage func([]byte) []byte
	onContext func([]byte)
	onReach   func(bool)
}

func newLink(log zerolog.Logger, cfg domain.PeerConfig, repo domain.PeerContextRepo) (*link, error) {
	raw := cfg.ProtocolVersion
	if raw == "" {
		raw = "1.0.0"
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid peer protocol version %q", raw)
	}

	timeout := cfg.ReplyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &link{log: log, version: v, repo: repo, replyTimeout: timeout}, nil
}

func (l *link) OnMessage(fn func([]byte) []byte) {
	l.mu.Lock()
	l.onMessage = fn
	l.mu.Unlock()
}

func (l *link) OnContext(fn func([]byte)) {
	l.mu.Lock()
	l.onContext = fn
	l.mu.Unlock()
}

func (l *link) OnReachabilityChange(fn func(bool)) {
	l.mu.Lock()
	l.onReach = fn
	l.mu.Unlock()
}

func (l *link) IsReachable() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sess != nil
}

func (l *link) current() *session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sess
}

func (l *link) SendImmediate(ctx context.Context, payload []byte) ([]byte, error) {
	s := l.current()
	if s == nil {
		return nil, ErrNotReachable
	}
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid json")
	}

	id := uuid.NewString()
	ch := s.awaitReply(id)
	defer s.forgetReply(id)

	if err := s.write(frame{Kind: frameMessage, ID: id, Payload: payload}); err != nil {
		return nil, errors.Wrap(err, "send to peer")
	}

	timer := time.NewTimer(l.replyTimeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return nil, errors.New("peer did not reply within %s", l.replyTimeout)
	case <-s.done:
		return nil, ErrNotReachable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetPersistentContext stores the snapshot and sends it if a peer is
// connected. A stored snapshot is also sent on every new connection.
func (l *link) SetPersistentContext(payload []byte) error {
	if !json.Valid(payload) {
		return errors.New("payload is not valid json")
	}
	if err := l.repo.SetContext(context.Background(), payload); err != nil {
		return errors.Wrap(err, "store peer context")
	}

	if s := l.current(); s != nil {
		if err := s.write(frame{Kind: frameContext, Payload: payload}); err != nil {
			l.log.Warn().Err(err).Msg("could not send context, will resend on reconnect")
		}
	}
	return nil
}

// attach makes s the live session. Only one session may be live.
func (l *link) attach(s *session) error {
	l.mu.Lock()
	if l.sess != nil {
		l.mu.Unlock()
		return ErrPeerAlreadyConnected
	}
	l.sess = s
	onReach := l.onReach
	l.mu.Unlock()

	l.log.Info().Msg("peer connected")
	if onReach != nil {
		onReach(true)
	}

	payload, err := l.repo.GetContext(context.Background())
	if err != nil {
		l.log.Error().Err(err).Msg("could not load stored peer context")
	} else if payload != nil {
		if err := s.write(frame{Kind: frameContext, Payload: payload}); err != nil {
			l.log.Warn().Err(err).Msg("could not deliver stored context")
		}
	}
	return nil
}

func (l *link) detach(s *session) {
	l.mu.Lock()
	if l.sess != s {
		l.mu.Unlock()
		return
	}
	l.sess = nil
	onReach := l.onReach
	l.mu.Unlock()

	s.close()
	l.log.Info().Msg("peer disconnected")
	if onReach != nil {
		onReach(false)
	}
}

// serve runs the read loop for s until the connection drops. Inbound
// messages are handled one at a time off the read loop, so a handler may
// itself send and wait for a reply.
func (l *link) serve(s *session) {
	defer l.detach(s)

	go l.dispatch(s)

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.log.Warn().Err(err).Msg("peer connection closed")
			}
			return
		}

		switch f.Kind {
		case frameReply:
			s.deliverReply(f)
		case frameMessage, frameContext:
			select {
			case s.inbox <- f:
			case <-s.done:
				return
			}
		default:
			l.log.Debug().Str("kind", f.Kind).Msg("ignoring unexpected frame")
		}
	}
}

func (l *link) dispatch(s *session) {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.inbox:
			l.mu.RLock()
			onMessage, onContext := l.onMessage, l.onContext
			l.mu.RUnlock()

			switch f.Kind {
			case frameContext:
				if onContext != nil {
					onContext(f.Payload)
				}
			case frameMessage:
				var reply []byte
				if onMessage != nil {
					reply = onMessage(f.Payload)
				}
				if err := s.write(frame{Kind: frameReply, ID: f.ID, Payload: reply}); err != nil {
					l.log.Warn().Err(err).Msg("could not reply to peer")
				}
			}
		}
	}
}

// handshake sends our hello and checks the peer's.
func (l *link) handshake(conn *websocket.Conn, sendFirst bool) error {
	hello := frame{Kind: frameHello, Version: l.version.String()}

	if sendFirst {
		if err := conn.WriteJSON(hello); err != nil {
			return errors.Wrap(err, "send hello")
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeWait)); err != nil {
		return err
	}
	var theirs frame
	if err := conn.ReadJSON(&theirs); err != nil {
		return errors.Wrap(err, "read hello")
	}
	if theirs.Kind != frameHello {
		return errors.New("expected hello, got %q", theirs.Kind)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}

	if err := compatible(l.version, theirs.Version); err != nil {
		return err
	}

	if !sendFirst {
		if err := conn.WriteJSON(hello); err != nil {
			return errors.Wrap(err, "send hello")
		}
	}
	return nil
}

func (l *link) closeSession() {
	if s := l.current(); s != nil {
		l.detach(s)
	}
}

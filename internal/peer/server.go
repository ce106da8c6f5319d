package peer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

// ServerTransport accepts the single paired peer on an http endpoint.
type ServerTransport struct {
	*link

	tokenHash string
	upgrader  websocket.Upgrader
}

func NewServerTransport(log logger.Logger, cfg domain.PeerConfig, repo domain.PeerContextRepo) (*ServerTransport, error) {
	l, err := newLink(log.With().Str("module", "peer").Str("transport", "server").Logger(), cfg, repo)
	if err != nil {
		return nil, err
	}

	return &ServerTransport{
		link:      l,
		tokenHash: cfg.PairingTokenHash,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// VerifyPairingToken compares a presented token against the stored bcrypt hash.
func VerifyPairingToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

func pairingToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (t *ServerTransport) Activate(ctx context.Context) error {
	t.log.Debug().Msg("accepting peer connections")
	return nil
}

func (t *ServerTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !VerifyPairingToken(t.tokenHash, pairingToken(r)) {
		t.log.Warn().Str("remote", r.RemoteAddr).Msg("peer rejected: bad pairing token")
		http.Error(w, "invalid pairing token", http.StatusUnauthorized)
		return
	}

	if t.IsReachable() {
		t.log.Warn().Str("remote", r.RemoteAddr).Msg("peer rejected: already paired")
		http.Error(w, ErrPeerAlreadyConnected.Error(), http.StatusConflict)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Error().Err(err).Msg("failed to upgrade peer connection")
		return
	}

	if err := t.handshake(conn, false); err != nil {
		t.log.Warn().Err(err).Msg("peer handshake failed")
		code := websocket.CloseProtocolError
		if errors.Is(err, ErrIncompatibleVersion) {
			code = websocket.ClosePolicyViolation
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s := newSession(conn)
	if err := t.attach(s); err != nil {
		t.log.Warn().Err(err).Msg("peer rejected")
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	t.serve(s)
}

func (t *ServerTransport) Close() error {
	t.closeSession()
	return nil
}

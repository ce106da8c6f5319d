package peer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/gorilla/websocket"
	"gopkg.in/cenkalti/backoff.v1"
)

// ClientTransport dials the phone's peer endpoint and keeps redialing.
type ClientTransport struct {
	*link

	url            string
	token          string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClientTransport(log logger.Logger, cfg domain.PeerConfig, repo domain.PeerContextRepo) (*ClientTransport, error) {
	if cfg.PhoneURL == "" {
		return nil, errors.New("peer phone_url is required for the watch role")
	}

	l, err := newLink(log.With().Str("module", "peer").Str("transport", "client").Logger(), cfg, repo)
	if err != nil {
		return nil, err
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}

	return &ClientTransport{
		link:           l,
		url:            cfg.PhoneURL,
		token:          cfg.PairingToken,
		reconnectDelay: delay,
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeWait},
	}, nil
}

// Activate starts the dial loop. It returns immediately; reachability is
// reported through OnReachabilityChange.
func (t *ClientTransport) Activate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return nil
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go t.loop(ctx)
	return nil
}

func (t *ClientTransport) loop(ctx context.Context) {
	defer close(t.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.reconnectDelay
	b.MaxInterval = 10 * t.reconnectDelay
	b.MaxElapsedTime = 0

	for {
		err := t.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := t.reconnectDelay
		if err != nil {
			wait = b.NextBackOff()
			t.log.Warn().Err(err).Dur("retry_in", wait).Msg("could not reach phone")
		} else {
			b.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect dials once and serves the session until it drops.
func (t *ClientTransport) connect(ctx context.Context) error {
	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			return errors.Wrap(err, "dial %s: status %d", t.url, resp.StatusCode)
		}
		return errors.Wrap(err, "dial %s", t.url)
	}

	if err := t.handshake(conn, true); err != nil {
		_ = conn.Close()
		return err
	}

	s := newSession(conn)
	if err := t.attach(s); err != nil {
		_ = conn.Close()
		return err
	}

	stop := context.AfterFunc(ctx, func() { t.detach(s) })
	defer stop()

	t.serve(s)
	return nil
}

func (t *ClientTransport) Close() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	t.closeSession()
	<-done
	return nil
}

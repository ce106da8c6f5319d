package peer

import (
	"context"
	"sync"
)

// Pipe connects two in-process transports. It starts unreachable.
type Pipe struct {
	mu        sync.Mutex
	reachable bool
	ends      [2]*PipeEnd
}

// PipeEnd is one side of a Pipe and implements domain.PeerTransport.
type PipeEnd struct {
	pipe *Pipe
	idx  int

	mu        sync.Mutex
	activated bool
	context   []byte
	sent      [][]byte
	onMessage func([]byte) []byte
	onContext func([]byte)
	onReach   func(bool)
}

func NewPipe() (*Pipe, *PipeEnd, *PipeEnd) {
	p := &Pipe{}
	p.ends[0] = &PipeEnd{pipe: p, idx: 0}
	p.ends[1] = &PipeEnd{pipe: p, idx: 1}
	return p, p.ends[0], p.ends[1]
}

// SetReachable connects or disconnects the two ends. On connect each end's
// pending context is delivered to the other.
func (p *Pipe) SetReachable(reachable bool) {
	p.mu.Lock()
	if p.reachable == reachable {
		p.mu.Unlock()
		return
	}
	p.reachable = reachable
	p.mu.Unlock()

	for _, e := range p.ends {
		e.notifyReach(reachable)
	}
	if reachable {
		for _, e := range p.ends {
			e.flushContext()
		}
	}
}

func (p *Pipe) isReachable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachable
}

func (e *PipeEnd) other() *PipeEnd {
	return e.pipe.ends[1-e.idx]
}

func (e *PipeEnd) Activate(ctx context.Context) error {
	e.mu.Lock()
	e.activated = true
	e.mu.Unlock()

	e.flushContext()
	return nil
}

func (e *PipeEnd) IsReachable() bool {
	return e.pipe.isReachable()
}

func (e *PipeEnd) SendImmediate(ctx context.Context, payload []byte) ([]byte, error) {
	if !e.pipe.isReachable() {
		return nil, ErrNotReachable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sent = append(e.sent, payload)
	e.mu.Unlock()

	peer := e.other()
	peer.mu.Lock()
	fn := peer.onMessage
	peer.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(payload), nil
}

func (e *PipeEnd) SetPersistentContext(payload []byte) error {
	e.mu.Lock()
	e.context = payload
	e.mu.Unlock()

	e.flushContext()
	return nil
}

// flushContext hands the pending context to the other end when reachable.
func (e *PipeEnd) flushContext() {
	if !e.pipe.isReachable() {
		return
	}

	e.mu.Lock()
	payload := e.context
	ready := e.activated
	if ready {
		e.context = nil
	}
	e.mu.Unlock()

	if !ready || payload == nil {
		return
	}

	peer := e.other()
	peer.mu.Lock()
	fn := peer.onContext
	peer.mu.Unlock()

	if fn != nil {
		fn(payload)
	}
}

func (e *PipeEnd) notifyReach(reachable bool) {
	e.mu.Lock()
	fn := e.onReach
	e.mu.Unlock()
	if fn != nil {
		fn(reachable)
	}
}

func (e *PipeEnd) OnMessage(fn func([]byte) []byte) {
	e.mu.Lock()
	e.onMessage = fn
	e.mu.Unlock()
}

func (e *PipeEnd) OnContext(fn func([]byte)) {
	e.mu.Lock()
	e.onContext = fn
	e.mu.Unlock()
}

func (e *PipeEnd) OnReachabilityChange(fn func(bool)) {
	e.mu.Lock()
	e.onReach = fn
	e.mu.Unlock()
}

// Sent returns the payloads sent directly from this end.
func (e *PipeEnd) Sent() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.sent))
	copy(out, e.sent)
	return out
}

// PendingContext returns the context not yet delivered, or nil.
func (e *PipeEnd) PendingContext() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.context
}

func (e *PipeEnd) Close() error {
	e.pipe.SetReachable(false)
	return nil
}

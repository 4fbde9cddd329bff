// Package peer implements a symmetric JSON-RPC endpoint over one duplex
// connection.
//
// A Peer issues requests and notifications, sends responses, and dispatches
// whatever arrives on the same connection. Outstanding requests are multiplexed
// by id through a correlation table:
//
//	Request(seq=a) ──insert a──┐
//	Request(seq=b) ──insert b──┼──→ conn ──→ remote peer
//	Notify ────────────────────┘
//
//	Receive: response(id=b) → take b → callback b
//	         request(id=x)  → OnRequest → Response(id=x)
//	         notification   → OnNotification
//	Sweep:   entries past their deadline → callback(ErrRequestTimeout)
//
// Every entry leaves the table exactly once (response, sweep or destroy) and
// only the goroutine that removed it runs its callback.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"jsonrpc-peer/codec"
	"jsonrpc-peer/message"
	"jsonrpc-peer/protocol"
	"jsonrpc-peer/transport"

	"github.com/glycerine/idem"
	"github.com/rs/zerolog"
)

// Peer is one endpoint of a JSON-RPC exchange. Its state is Active until the
// connection ends, the inbound stream is malformed, or Destroy is called;
// after that it is Destroyed for good.
type Peer struct {
	name   string
	conn   transport.Conn
	log    zerolog.Logger
	codec  codec.Codec
	framer protocol.Framer
	ids    message.IDGenerator
	now    func() time.Time
	window time.Duration
	sweep  time.Duration

	onRequest      RequestHandler
	onNotification NotificationHandler
	onDestroy      DestroyHandler

	ctx    context.Context
	cancel context.CancelFunc
	halt   *idem.Halter

	mu        sync.Mutex // guards table, destroyed, reason
	table     *table
	destroyed bool
	reason    error

	recvMu sync.Mutex // one Receive at a time; the framer is stateful
}

// New binds a peer to an already open connection.
func New(conn transport.Conn, cfg Config) *Peer {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	logger := cfg.Logger.With().Str("component", "peer").Logger()
	if cfg.Name != "" {
		logger = logger.With().Str("peer", cfg.Name).Logger()
	}

	return &Peer{
		name:           cfg.Name,
		conn:           conn,
		log:            logger,
		codec:          cfg.Codec,
		framer:         cfg.Framer,
		ids:            cfg.IDs,
		now:            cfg.Now,
		window:         cfg.TimeoutWindow,
		sweep:          cfg.SweepInterval,
		onRequest:      cfg.OnRequest,
		onNotification: cfg.OnNotification,
		onDestroy:      cfg.OnDestroy,
		ctx:            ctx,
		cancel:         cancel,
		halt:           idem.NewHalter(),
		table:          newTable(),
	}
}

// Request sends a request and registers cb for its response. It does not wait.
//
// cb runs exactly once whenever Request returns a nil error: with the response,
// or with an ErrRequestTimeout error on expiry or destroy. When Request returns
// an error, cb never runs.
func (p *Peer) Request(method string, params []any, cb Callback) (*message.Request, error) {
	if cb == nil {
		cb = func(error, json.RawMessage) {}
	}
	req := message.NewRequest(p.ids, method, params)
	key := message.Key(req.ID)

	// Register BEFORE sending, the response may beat the write's return.
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil, ErrDestroyed
	}
	if !p.table.insert(&pending{key: key, msg: req, callback: cb, deadline: p.now().Add(p.window)}) {
		p.mu.Unlock()
		return nil, fmt.Errorf("duplicate request id %s", key)
	}
	p.mu.Unlock()

	p.log.Debug().Str("method", method).Str("id", key).Msg("request")

	if err := p.send(req); err != nil {
		p.mu.Lock()
		_, ours := p.table.take(key)
		p.mu.Unlock()
		if ours {
			return nil, fmt.Errorf("write request: %w", err)
		}
		// a concurrent destroy already resolved the entry and ran cb
	}
	return req, nil
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Call is Request with a one-shot channel. A done ctx only stops the wait; the
// request itself still resolves through a response, the sweep or destroy.
func (p *Peer) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	done := make(chan callResult, 1)
	_, err := p.Request(method, params, func(err error, result json.RawMessage) {
		done <- callResult{result: result, err: err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Response answers the request with the given id. The peer keeps no record of
// responses it sends. A Go error as errPayload is sent as its message string.
func (p *Peer) Response(result any, id any, errPayload any) (*message.Response, error) {
	if e, ok := errPayload.(error); ok {
		errPayload = e.Error()
	}
	resp := message.NewResponse(result, id, errPayload)
	if p.Destroyed() {
		return nil, ErrDestroyed
	}
	if err := p.send(resp); err != nil {
		return nil, fmt.Errorf("write response: %w", err)
	}
	return resp, nil
}

// Notify sends a notification. There is nothing to wait for.
func (p *Peer) Notify(method string, params []any) (*message.Notification, error) {
	n := message.NewNotification(method, params)
	if p.Destroyed() {
		return nil, ErrDestroyed
	}
	if err := p.send(n); err != nil {
		return nil, fmt.Errorf("write notification: %w", err)
	}
	return n, nil
}

func (p *Peer) send(v any) error {
	data, err := p.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return p.conn.Write(p.framer.Frame(data))
}

// Receive feeds raw bytes from the connection through the framer and
// dispatches every complete message in order. A malformed stream destroys the
// peer after the messages decoded ahead of the bad bytes are dispatched.
func (p *Peer) Receive(raw []byte) {
	p.recvMu.Lock()
	defer p.recvMu.Unlock()

	if p.Destroyed() {
		return
	}

	values, err := p.framer.Consume(raw)
	for _, v := range values {
		if p.Destroyed() {
			return
		}
		p.dispatch(v)
	}
	if err != nil {
		p.log.Error().Err(err).Msg("decode failure")
		p.DestroyWithReason(err)
	}
}

func (p *Peer) dispatch(raw json.RawMessage) {
	m := message.Classify(raw)
	switch m.Kind {
	case message.KindResponse:
		p.rxResponse(m.Response)
	case message.KindRequest:
		p.rxRequest(m.Request)
	case message.KindNotification:
		p.rxNotification(m.Notification)
	default:
		p.log.Error().Str("reason", m.Reason).RawJSON("msg", raw).Msg("unclassifiable message")
	}
}

func (p *Peer) rxResponse(resp *message.Response) {
	key := message.Key(resp.ID)

	p.mu.Lock()
	e, ok := p.table.take(key)
	p.mu.Unlock()

	if !ok {
		p.log.Warn().Str("id", key).Msg("orphan response")
		return
	}
	p.log.Debug().Str("method", e.msg.Method).Str("id", key).Msg("response")

	var err error
	if raw, ok := resp.Error.(json.RawMessage); ok {
		err = &RemoteError{Payload: raw}
	}
	result, _ := resp.Result.(json.RawMessage)
	e.callback(err, result)
}

func (p *Peer) rxRequest(req *message.Request) {
	p.log.Debug().Str("method", req.Method).Str("id", message.Key(req.ID)).Msg("request received")

	var resp *message.Response
	if p.onRequest != nil {
		resp = p.onRequest(p.ctx, req)
	} else {
		resp = message.NewResponse(nil, req.ID, "method not found: "+req.Method)
	}
	if resp == nil {
		return
	}
	if resp.ID == nil {
		resp.ID = req.ID
	}
	if _, err := p.Response(resp.Result, resp.ID, resp.Error); err != nil && !errors.Is(err, ErrDestroyed) {
		p.log.Error().Err(err).Str("method", req.Method).Msg("write response failed")
	}
}

func (p *Peer) rxNotification(n *message.Notification) {
	p.log.Debug().Str("method", n.Method).Msg("notification")
	if p.onNotification != nil {
		p.onNotification(p.ctx, n)
	}
}

// Sweep times out every request whose deadline has passed and returns how
// many it removed. Serve runs it periodically; embedders constructing a Peer
// with New drive it themselves or call StartSweeper.
func (p *Peer) Sweep() int {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return 0
	}
	stale := p.table.expired(p.now())
	p.mu.Unlock()

	for _, e := range stale {
		p.log.Info().Str("method", e.msg.Method).Str("id", e.key).Msg("request timed out")
		e.callback(timeoutError(e.msg), nil)
	}
	return len(stale)
}

// Destroy is DestroyWithReason(nil).
func (p *Peer) Destroy() {
	p.DestroyWithReason(nil)
}

// DestroyWithReason closes the connection, fails every pending request with
// ErrRequestTimeout and fires OnDestroy. Only the first call has any effect.
func (p *Peer) DestroyWithReason(reason error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.reason = reason
	flushed := p.table.drain()
	p.mu.Unlock()

	p.halt.ReqStop.Close()
	p.cancel()

	if err := p.conn.Destroy(); err != nil {
		p.log.Debug().Err(err).Msg("close connection")
	}
	for _, e := range flushed {
		e.callback(timeoutError(e.msg), nil)
	}

	ev := p.log.Info().Int("flushed", len(flushed))
	if reason != nil {
		ev = ev.AnErr("reason", reason)
	}
	ev.Msg("peer destroyed")

	if p.onDestroy != nil {
		p.onDestroy(reason)
	}
	p.halt.Done.Close()
}

// OnData implements transport.Handler.
func (p *Peer) OnData(chunk []byte) {
	p.Receive(chunk)
}

// OnEnd implements transport.Handler.
func (p *Peer) OnEnd(err error) {
	if err == nil {
		err = ErrEndOfStream
	}
	p.DestroyWithReason(err)
}

// Destroyed reports whether the peer reached its terminal state.
func (p *Peer) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// Err returns the destroy reason, nil while active or after a plain Destroy.
func (p *Peer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// Name is Config.Name.
func (p *Peer) Name() string {
	return p.name
}

// Done is closed once destruction, OnDestroy included, has finished.
func (p *Peer) Done() <-chan struct{} {
	return p.halt.Done.Chan
}

// Pending returns the number of requests awaiting a response.
func (p *Peer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.len()
}

// Has reports whether a request with this id is pending.
func (p *Peer) Has(id any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.has(message.Key(id))
}

// Package server accepts connections and runs one Peer per connection.
//
// Inbound request pipeline:
//
//	Accept conn → peer.New + Peer.Run (stream read loop, sweeper)
//	  → OnRequest: go handle (parallel processing)
//	    → Middleware Chain → dispatch (HandleFunc or reflect.Call) → Peer.Response
//
// The peers are full JSON-RPC endpoints: handlers, or anything holding Peers(),
// may issue requests back to the connected client.
package server

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"jsonrpc-peer/codec"
	"jsonrpc-peer/message"
	"jsonrpc-peer/middleware"
	"jsonrpc-peer/peer"
	"jsonrpc-peer/protocol"
	"jsonrpc-peer/registry"
	"jsonrpc-peer/transport"

	"github.com/rs/zerolog"
)

// NotificationFunc serves an inbound notification for one method.
type NotificationFunc func(ctx context.Context, n *message.Notification)

// Options configures a Server. Peer is the template every connection's peer is
// built from; its handler fields are owned by the server and get overwritten.
type Options struct {
	Peer    peer.Config
	Framing protocol.Framing
	Codec   codec.CodecType

	// Service is registered in addition to the names of registered receivers.
	Service string
	// TTL of registry leases, in seconds.
	TTL int64

	Logger *zerolog.Logger
}

type Server struct {
	opts Options
	log  zerolog.Logger

	mu            sync.RWMutex
	serviceMap    map[string]*service
	funcs         map[string]middleware.HandlerFunc
	notifications map[string]NotificationFunc
	peers         map[*peer.Peer]struct{}

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	listener      net.Listener
	wg            sync.WaitGroup // in-flight handlers
	shutdown      atomic.Bool
	registry      registry.Registry
	advertiseAddr string
}

func NewServer(opts Options) *Server {
	if opts.TTL <= 0 {
		opts.TTL = 10
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		opts:          opts,
		log:           logger.With().Str("component", "server").Logger(),
		serviceMap:    make(map[string]*service),
		funcs:         make(map[string]middleware.HandlerFunc),
		notifications: make(map[string]NotificationFunc),
		peers:         make(map[*peer.Peer]struct{}),
	}
}

// Register serves the exported methods of rcvr shaped
// M(args *A, reply *R) error as "T.M", where T is the receiver's type name.
func (svr *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.serviceMap[svc.name] = svc
	return nil
}

// HandleFunc serves method with fn. It takes precedence over a registered
// receiver method of the same name.
func (svr *Server) HandleFunc(method string, fn middleware.HandlerFunc) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.funcs[method] = fn
}

// HandleNotification serves notifications for method. Notifications for
// methods without a handler are dropped.
func (svr *Server) HandleNotification(method string, fn NotificationFunc) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.notifications[method] = fn
}

// Use registers a middleware. Middlewares run in the order they are added.
// Call it before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and serves it until Shutdown. advertiseAddr is the
// address put in the registry; reg may be nil to skip discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener, advertiseAddr, reg)
}

// ServeListener is Serve on an already bound listener.
func (svr *Server) ServeListener(listener net.Listener, advertiseAddr string, reg registry.Registry) error {
	if _, err := protocol.NewFramer(svr.opts.Framing); err != nil {
		listener.Close()
		return err
	}

	svr.mu.Lock()
	svr.listener = listener
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)
	svr.mu.Unlock()

	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}
	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		ep := registry.Endpoint{
			Addr:    advertiseAddr,
			Weight:  1,
			Codec:   svr.opts.Codec.String(),
			Framing: string(svr.opts.Framing),
		}
		for _, name := range svr.serviceNames() {
			if err := reg.Register(context.Background(), name, ep, svr.opts.TTL); err != nil {
				listener.Close()
				return fmt.Errorf("register %s: %w", name, err)
			}
		}
	}

	svr.log.Info().Str("addr", listener.Addr().String()).Str("advertise", advertiseAddr).Msg("serving")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.handleConn(conn)
	}
}

// Addr is the bound listener address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// Peers returns the peers of the currently open connections.
func (svr *Server) Peers() []*peer.Peer {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	out := make([]*peer.Peer, 0, len(svr.peers))
	for p := range svr.peers {
		out = append(out, p)
	}
	return out
}

func (svr *Server) serviceNames() []string {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	var names []string
	if svr.opts.Service != "" {
		names = append(names, svr.opts.Service)
	}
	for name := range svr.serviceMap {
		if name != svr.opts.Service {
			names = append(names, name)
		}
	}
	return names
}

func (svr *Server) handleConn(conn net.Conn) {
	// NewFramer was validated in ServeListener.
	framer, _ := protocol.NewFramer(svr.opts.Framing)
	stream := transport.NewStream(conn)

	cfg := svr.opts.Peer
	cfg.Name = stream.RemoteAddr()
	cfg.Framer = framer
	cfg.Codec = codec.GetCodec(svr.opts.Codec)
	if svr.opts.Logger != nil && cfg.Logger == nil {
		cfg.Logger = svr.opts.Logger
	}

	var p *peer.Peer
	onDestroy := cfg.OnDestroy
	cfg.OnDestroy = func(reason error) {
		svr.mu.Lock()
		delete(svr.peers, p)
		svr.mu.Unlock()
		svr.log.Debug().Str("remote", stream.RemoteAddr()).AnErr("reason", reason).Msg("connection closed")
		if onDestroy != nil {
			onDestroy(reason)
		}
	}
	cfg.OnRequest = func(ctx context.Context, req *message.Request) *message.Response {
		if !svr.track() {
			return message.NewResponse(nil, req.ID, "server shutting down")
		}
		go svr.handleRequest(ctx, p, req)
		return nil
	}
	cfg.OnNotification = func(ctx context.Context, n *message.Notification) {
		svr.mu.RLock()
		fn := svr.notifications[n.Method]
		svr.mu.RUnlock()
		if fn == nil {
			svr.log.Debug().Str("method", n.Method).Msg("unhandled notification")
			return
		}
		if !svr.track() {
			svr.log.Debug().Str("method", n.Method).Msg("notification dropped during shutdown")
			return
		}
		go func() {
			defer svr.wg.Done()
			fn(ctx, n)
		}()
	}

	p = peer.New(stream, cfg)
	svr.mu.Lock()
	svr.peers[p] = struct{}{}
	svr.mu.Unlock()
	p.Run(stream)
}

// track counts one more in-flight handler unless shutdown has begun. The
// check and the Add happen under mu, which Shutdown holds while it sets the
// flag, so no Add can follow the start of Wait.
func (svr *Server) track() bool {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

// handleRequest runs one request through the middleware chain and writes the
// response back on p.
func (svr *Server) handleRequest(ctx context.Context, p *peer.Peer, req *message.Request) {
	defer svr.wg.Done()

	resp := svr.handler(ctx, req)
	if resp == nil {
		return
	}
	if resp.ID == nil {
		resp.ID = req.ID
	}
	if _, err := p.Response(resp.Result, resp.ID, resp.Error); err != nil {
		svr.log.Debug().Err(err).Str("method", req.Method).Msg("response not written")
	}
}

// dispatch is the innermost handler: HandleFunc routes first, then
// "Service.Method" through reflection.
func (svr *Server) dispatch(ctx context.Context, req *message.Request) *message.Response {
	svr.mu.RLock()
	fn := svr.funcs[req.Method]
	var svc *service
	var method *methodType
	if split := strings.Split(req.Method, "."); fn == nil && len(split) == 2 {
		if svc = svr.serviceMap[split[0]]; svc != nil {
			method = svc.method[split[1]]
		}
	}
	svr.mu.RUnlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if method == nil {
		return message.NewResponse(nil, req.ID, "method not found: "+req.Method)
	}

	argv := reflect.New(method.ArgType)
	replyv := reflect.New(method.ReplyType)

	if len(req.Params) > 0 {
		if err := req.Bind(0, argv.Interface()); err != nil {
			return message.NewResponse(nil, req.ID, "invalid params: "+err.Error())
		}
	}

	if err := svc.call(method, argv, replyv); err != nil {
		return message.NewResponse(nil, req.ID, err.Error())
	}
	return message.NewResponse(replyv.Interface(), req.ID, nil)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry so clients stop picking this server
//  2. Stop accepting connections
//  3. Wait for in-flight handlers, at most timeout
//  4. Destroy every peer
func (svr *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if svr.registry != nil {
		for _, name := range svr.serviceNames() {
			if err := svr.registry.Deregister(ctx, name, svr.advertiseAddr); err != nil {
				svr.log.Warn().Err(err).Str("service", name).Msg("deregister failed")
			}
		}
	}

	// flag before Close, so Serve sees the Accept error as intentional
	svr.mu.Lock()
	svr.shutdown.Store(true)
	listener := svr.listener
	svr.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	for _, p := range svr.Peers() {
		p.Destroy()
	}
	return err
}

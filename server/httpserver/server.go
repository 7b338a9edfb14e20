package httpserver

import (
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/crowcoin/crowd/infrastructure/config"
	"github.com/crowcoin/crowd/infrastructure/logger"
	"github.com/crowcoin/crowd/util/network"
)

// maxHeadersSize is the largest accepted size of all headers of a single
// request.
const maxHeadersSize = 8192

// Server is the HTTP front-end all RPC-style services are registered on. It
// accepts connections on the configured interfaces, gates every request
// through the access list, and dispatches matched requests to a bounded work
// queue serviced by a fixed number of worker goroutines.
type Server struct {
	started  int32
	shutdown int32

	cfg       *config.Config
	acl       *accessList
	registry  *handlerRegistry
	workQueue *workQueue
	loop      *EventLoop

	httpServer *http.Server
	listeners  []net.Listener
}

// New prepares a Server according to the given config. All configured
// interfaces are bound immediately so that bind failures surface as startup
// errors, but no connections are served until Start is called.
func New(cfg *config.Config) (*Server, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "httpserver.New")
	defer onEnd()

	acl, err := newAccessList(cfg.RPCAllowIP)
	if err != nil {
		return nil, err
	}
	log.Debugf("Allowing HTTP connections from: %s", acl)

	s := &Server{
		cfg:       cfg,
		acl:       acl,
		registry:  &handlerRegistry{},
		workQueue: newWorkQueue(cfg.RPCWorkQueue),
		loop:      newEventLoop(),
	}
	s.httpServer = &http.Server{
		Handler:        http.HandlerFunc(s.handleRequest),
		ReadTimeout:    cfg.RPCServerTimeout,
		MaxHeaderBytes: maxHeadersSize,
	}

	addresses, err := bindAddresses(cfg)
	if err != nil {
		return nil, err
	}
	for _, address := range addresses {
		listener, err := net.Listen("tcp", address)
		if err != nil {
			log.Warnf("Failed binding HTTP server to %s: %s", address, err)
			continue
		}
		log.Infof("HTTP server bound to %s", listener.Addr())
		s.listeners = append(s.listeners, listener)
	}
	if len(s.listeners) == 0 {
		return nil, errors.New("unable to bind the HTTP server to any endpoint")
	}

	return s, nil
}

// bindAddresses resolves the interfaces to listen on. Without any allowed
// remote sources only the loopback interfaces are bound, and explicitly
// configured bind addresses are ignored so a stray rpcbind can't expose the
// server to everyone.
func bindAddresses(cfg *config.Config) ([]string, error) {
	if len(cfg.RPCAllowIP) == 0 {
		if len(cfg.RPCBind) > 0 {
			log.Warnf("The rpcbind option is ignored because rpcallowip was not specified, " +
				"refusing to allow everyone to connect")
		}
		return []string{
			net.JoinHostPort("127.0.0.1", cfg.RPCPort),
			net.JoinHostPort("::1", cfg.RPCPort),
		}, nil
	}

	if len(cfg.RPCBind) > 0 {
		return network.NormalizeAddresses(cfg.RPCBind, cfg.RPCPort)
	}

	return []string{net.JoinHostPort("", cfg.RPCPort)}, nil
}

// RegisterHandler routes requests for the given path to the handler. With
// exactMatch only the exact path matches, otherwise the path is treated as a
// prefix. Handlers are consulted in registration order and the first match
// wins.
func (s *Server) RegisterHandler(prefix string, exactMatch bool, handler HandlerFunc) {
	s.registry.register(prefix, exactMatch, handler)
}

// UnregisterHandler removes a handler previously added with RegisterHandler.
func (s *Server) UnregisterHandler(prefix string, exactMatch bool) {
	s.registry.unregister(prefix, exactMatch)
}

// Start launches the event loop, the worker goroutines and the listener
// goroutines. Calling it more than once is a no-op.
func (s *Server) Start() {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	log.Infof("Starting HTTP server with %d worker threads and a work queue depth of %d",
		s.cfg.RPCThreads, s.cfg.RPCWorkQueue)

	spawn(s.loop.run)
	for i := 0; i < s.cfg.RPCThreads; i++ {
		spawn(s.workQueue.run)
	}
	for _, listener := range s.listeners {
		listener := listener
		spawn(func() {
			err := s.httpServer.Serve(listener)
			if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
				log.Errorf("HTTP server on %s exited: %s", listener.Addr(), err)
			}
		})
	}
}

// Interrupt makes the server refuse new work. The listeners are detached so
// no new connections are accepted, requests arriving on connections that are
// already open are answered with 503, queued requests are abandoned with a
// synthesized error reply, and the worker goroutines exit once their current
// item is done. Calling it more than once is a no-op.
func (s *Server) Interrupt() {
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		return
	}

	log.Infof("Interrupting HTTP server")
	for _, listener := range s.listeners {
		err := listener.Close()
		if err != nil {
			log.Errorf("Error detaching the listener on %s: %s", listener.Addr(), err)
		}
	}
	s.workQueue.interrupt()
}

// Stop shuts the server down. It waits for the worker goroutines to exit,
// gives the event loop a grace period to flush outstanding replies, and then
// tears down the listeners and any remaining connections. Interrupt is
// implied when it wasn't called already.
func (s *Server) Stop() {
	s.Interrupt()
	log.Infof("Stopping HTTP server")

	s.workQueue.waitExit()
	s.loop.stop()
	err := s.httpServer.Close()
	if err != nil {
		log.Errorf("Error closing the HTTP server: %s", err)
	}

	log.Infof("HTTP server stopped")
}

// ListenAddrs returns the addresses the server was bound to. Useful when
// binding to port 0.
func (s *Server) ListenAddrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, listener := range s.listeners {
		addrs = append(addrs, listener.Addr())
	}
	return addrs
}

// WorkQueueDepth returns the number of requests currently waiting for a
// worker.
func (s *Server) WorkQueueDepth() int {
	return s.workQueue.depth()
}

// WorkerCount returns the number of live worker goroutines.
func (s *Server) WorkerCount() int {
	return s.workQueue.workerCount()
}

// EventLoop exposes the server's event loop so that other subsystems can
// piggyback their own events on it.
func (s *Server) EventLoop() *EventLoop {
	return s.loop
}

// httpWorkItem carries one matched request through the work queue.
type httpWorkItem struct {
	request    *Request
	handler    HandlerFunc
	pathSuffix string
}

// execute runs the handler and synthesizes an internal error reply if the
// handler forgot to send one.
func (item *httpWorkItem) execute() {
	item.handler(item.request, item.pathSuffix)
	if !item.request.Replied() {
		log.Warnf("Handler for %s returned without replying", item.request.URI())
		item.request.WriteReply(http.StatusInternalServerError, []byte("Unhandled request\n"))
	}
}

// abandon releases a request that was dequeued without being executed.
func (item *httpWorkItem) abandon() {
	log.Debugf("Abandoning the queued request for %s", item.request.URI())
	item.request.WriteReply(http.StatusInternalServerError, []byte("Unhandled request\n"))
}

// handleRequest is the entry point for every accepted request. It performs
// the gate checks and either rejects the request or queues it for a worker.
// The goroutine then blocks until the reply went out, since the
// ResponseWriter must stay valid until it was written to.
func (s *Server) handleRequest(writer http.ResponseWriter, httpRequest *http.Request) {
	request := newRequest(writer, httpRequest, s.loop)

	if atomic.LoadInt32(&s.shutdown) != 0 {
		request.WriteReply(http.StatusServiceUnavailable, []byte("Service unavailable\n"))
		request.waitReplied()
		return
	}

	if !s.acl.clientAllowed(request.Peer()) {
		log.Debugf("Rejecting HTTP request from %s: source not allowed", request.Peer())
		request.WriteReply(http.StatusForbidden, []byte("Forbidden\n"))
		request.waitReplied()
		return
	}

	switch request.Method() {
	case http.MethodGet, http.MethodPost, http.MethodHead, http.MethodPut:
	default:
		request.WriteReply(http.StatusMethodNotAllowed, []byte("Unknown HTTP request method\n"))
		request.waitReplied()
		return
	}

	handler, prefix, found := s.registry.find(request.Path())
	if !found {
		request.WriteReply(http.StatusNotFound, []byte("Not found\n"))
		request.waitReplied()
		return
	}
	log.Tracef("Dispatching request for %s from %s to the handler for %s",
		request.URI(), request.Peer(), prefix)

	item := &httpWorkItem{
		request:    request,
		handler:    handler,
		pathSuffix: strings.TrimPrefix(request.Path(), prefix),
	}
	if !s.workQueue.enqueue(item) {
		log.Warnf("Rejecting request from %s: work queue depth exceeded", request.Peer())
		request.WriteReply(http.StatusInternalServerError, []byte("Work queue depth exceeded\n"))
	}
	request.waitReplied()
}

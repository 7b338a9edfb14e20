package rpc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/crowcoin/crowd/infrastructure/config"
	"github.com/crowcoin/crowd/infrastructure/os/signal"
	"github.com/crowcoin/crowd/infrastructure/scheduler"
	"github.com/crowcoin/crowd/server/httpserver"
)

// statsInterval is how often the server logs its work queue statistics.
const statsInterval = time.Minute

// Server is the JSON-RPC service. It registers itself as the root path
// handler of an HTTP server and answers authenticated JSON-RPC 1.0 requests
// with the commands from the handler table.
type Server struct {
	started  int32
	shutdown int32

	cfg        *config.Config
	httpServer *httpserver.Server
	scheduler  *scheduler.Scheduler
	startTime  time.Time
	authSHA    [sha256.Size]byte
}

// NewServer returns an RPC server bound to the given HTTP server. Start must
// be called to actually register the handler.
func NewServer(cfg *config.Config, httpServer *httpserver.Server, sched *scheduler.Scheduler) *Server {
	login := cfg.RPCUser + ":" + cfg.RPCPass
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
	return &Server{
		cfg:        cfg,
		httpServer: httpServer,
		scheduler:  sched,
		startTime:  time.Now(),
		authSHA:    sha256.Sum256([]byte(auth)),
	}
}

// Start registers the RPC handler and the periodic statistics task. Calling
// it more than once is a no-op.
func (s *Server) Start() {
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	log.Infof("Starting RPC server")
	s.httpServer.RegisterHandler("/", true, s.handleRequest)
	s.scheduler.ScheduleEvery(func() {
		log.Debugf("RPC work queue depth %d, %d workers",
			s.httpServer.WorkQueueDepth(), s.httpServer.WorkerCount())
	}, statsInterval)
}

// Stop unregisters the RPC handler so in-flight shutdowns stop routing new
// calls into the service. Calling it more than once is a no-op.
func (s *Server) Stop() {
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		return
	}

	log.Infof("Stopping RPC server")
	s.httpServer.UnregisterHandler("/", true)
}

// checkAuth verifies the Authorization header against the configured
// credentials. Both sides are hashed before comparing so the comparison time
// doesn't leak how much of the secret matched.
func (s *Server) checkAuth(request *httpserver.Request) bool {
	authHeader, ok := request.Header("Authorization")
	if !ok {
		return false
	}
	authSHA := sha256.Sum256([]byte(authHeader))
	return subtle.ConstantTimeCompare(s.authSHA[:], authSHA[:]) == 1
}

func (s *Server) handleRequest(request *httpserver.Request, _ string) {
	if request.Method() != http.MethodPost {
		request.WriteReply(http.StatusMethodNotAllowed,
			[]byte("JSON-RPC server handles only POST requests\n"))
		return
	}

	if !s.checkAuth(request) {
		log.Warnf("Failed RPC authentication attempt from %s", request.Peer())
		request.SetHeader("WWW-Authenticate", `Basic realm="crowd RPC"`)
		request.WriteReply(http.StatusUnauthorized, []byte("401 Unauthorized.\n"))
		return
	}

	body, err := request.ReadBody()
	if err != nil {
		request.WriteReply(http.StatusBadRequest, []byte("error reading JSON message\n"))
		return
	}

	var rpcRequest rawRequest
	response := rawResponse{Result: json.RawMessage("null")}
	if err := json.Unmarshal(body, &rpcRequest); err != nil {
		response.Error = &Error{Code: ErrParse, Message: "Parse error"}
	} else {
		response.ID = rpcRequest.ID
		result, rpcErr := s.execute(&rpcRequest)
		if rpcErr != nil {
			response.Error = rpcErr
		} else {
			marshalled, err := json.Marshal(result)
			if err != nil {
				response.Error = &Error{Code: ErrInternal, Message: "Internal error"}
			} else {
				response.Result = marshalled
			}
		}
	}

	marshalled, err := json.Marshal(response)
	if err != nil {
		request.WriteReply(http.StatusInternalServerError, []byte("error marshalling reply\n"))
		return
	}
	request.SetHeader("Content-Type", "application/json")
	request.WriteReply(errHTTPStatus(response.Error), append(marshalled, '\n'))
}

// errHTTPStatus maps the error object of a JSON-RPC response to the HTTP
// status code the response is delivered with.
func errHTTPStatus(rpcErr *Error) int {
	if rpcErr == nil {
		return http.StatusOK
	}
	switch rpcErr.Code {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) execute(request *rawRequest) (interface{}, *Error) {
	log.Debugf("Handling RPC command %s", request.Method)

	handler, ok := handlers[request.Method]
	if !ok {
		return nil, &Error{Code: ErrMethodNotFound, Message: "Method not found"}
	}
	return handler(s, request.Params)
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// requestShutdown asks the process to begin a clean shutdown. The send is
// asynchronous since the response to the stop command still has to go out on
// the wire.
func (s *Server) requestShutdown() {
	spawn(func() {
		signal.ShutdownRequestChannel <- struct{}{}
	})
}

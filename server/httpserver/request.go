package httpserver

import (
	"io/ioutil"
	"net/http"
	"sync"
)

// maxBodySize is the largest request body the server accepts. Bodies past
// this limit make ReadBody fail.
const maxBodySize = 32 * 1024 * 1024

// Request is a single in-flight HTTP request handed to a path handler. All
// read accessors may be used freely from the handling goroutine; the reply
// itself is written by the server's event loop goroutine when WriteReply is
// called.
type Request struct {
	httpRequest *http.Request
	writer      http.ResponseWriter
	loop        *EventLoop

	mtx     sync.Mutex
	replied bool
	done    chan struct{}
}

func newRequest(writer http.ResponseWriter, httpRequest *http.Request, loop *EventLoop) *Request {
	return &Request{
		httpRequest: httpRequest,
		writer:      writer,
		loop:        loop,
		done:        make(chan struct{}),
	}
}

// URI returns the unmodified request URI, including any query string.
func (r *Request) URI() string {
	return r.httpRequest.URL.RequestURI()
}

// Path returns the path component of the request URI.
func (r *Request) Path() string {
	return r.httpRequest.URL.Path
}

// Method returns the HTTP request method.
func (r *Request) Method() string {
	return r.httpRequest.Method
}

// Peer returns the remote address of the requesting client.
func (r *Request) Peer() string {
	return r.httpRequest.RemoteAddr
}

// Header returns the value of the given request header and whether it was
// present.
func (r *Request) Header(key string) (string, bool) {
	values, ok := r.httpRequest.Header[http.CanonicalHeaderKey(key)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// ReadBody reads and returns the whole request body. Bodies larger than
// maxBodySize produce an error.
func (r *Request) ReadBody() ([]byte, error) {
	body := http.MaxBytesReader(r.writer, r.httpRequest.Body, maxBodySize)
	return ioutil.ReadAll(body)
}

// SetHeader sets a reply header. It must be called before WriteReply.
func (r *Request) SetHeader(key, value string) {
	r.writer.Header().Set(key, value)
}

// WriteReply sends the reply with the given status code and body. Only the
// first call takes effect; later calls are ignored. The write itself happens
// on the event loop goroutine.
func (r *Request) WriteReply(status int, body []byte) {
	r.mtx.Lock()
	if r.replied {
		r.mtx.Unlock()
		log.Warnf("Duplicate reply for %s from %s ignored", r.URI(), r.Peer())
		return
	}
	r.replied = true
	r.mtx.Unlock()

	posted := r.loop.Post(func() {
		r.writer.WriteHeader(status)
		if len(body) > 0 {
			_, err := r.writer.Write(body)
			if err != nil {
				log.Debugf("Failed writing reply to %s: %s", r.Peer(), err)
			}
		}
		close(r.done)
	})
	if !posted {
		// The event loop is gone, which only happens during shutdown.
		// Release the handling goroutine; the connection is torn down
		// by the server.
		close(r.done)
	}
}

// Replied returns whether WriteReply was already called for this request.
func (r *Request) Replied() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.replied
}

// waitReplied blocks until the reply was written out, or until the event
// loop exited and the reply will never be written.
func (r *Request) waitReplied() {
	select {
	case <-r.done:
	case <-r.loop.done:
	}
}

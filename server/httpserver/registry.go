package httpserver

import (
	"strings"
	"sync"
)

// HandlerFunc services a single dispatched request. pathSuffix is the part
// of the request path past the registered prefix; for exact matches it is
// empty. The handler must eventually call WriteReply on the request,
// otherwise an internal error reply is synthesized on its behalf.
type HandlerFunc func(request *Request, pathSuffix string)

// pathHandler binds a path to a handler. With exactMatch the request path
// must equal the prefix, otherwise any path starting with the prefix
// matches.
type pathHandler struct {
	prefix     string
	exactMatch bool
	handler    HandlerFunc
}

// handlerRegistry holds the registered path handlers in registration order.
// Dispatch scans the list front to back and uses the first match, so more
// specific paths should be registered before catch-all prefixes.
type handlerRegistry struct {
	mtx      sync.RWMutex
	handlers []pathHandler
}

// register appends a handler for the given path.
func (r *handlerRegistry) register(prefix string, exactMatch bool, handler HandlerFunc) {
	log.Debugf("Registering HTTP handler for %s (exactmatch %t)", prefix, exactMatch)

	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.handlers = append(r.handlers, pathHandler{
		prefix:     prefix,
		exactMatch: exactMatch,
		handler:    handler,
	})
}

// unregister removes the first handler registered for the given path and
// match mode. Unknown patterns are ignored.
func (r *handlerRegistry) unregister(prefix string, exactMatch bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for i, handler := range r.handlers {
		if handler.prefix == prefix && handler.exactMatch == exactMatch {
			log.Debugf("Unregistering HTTP handler for %s (exactmatch %t)", prefix, exactMatch)
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

// find returns the first handler matching the given request path together
// with the matched prefix. The remainder of the path past the prefix is the
// handler's argument.
func (r *handlerRegistry) find(path string) (handler HandlerFunc, prefix string, found bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for _, pathHandler := range r.handlers {
		if pathHandler.exactMatch {
			if path == pathHandler.prefix {
				return pathHandler.handler, pathHandler.prefix, true
			}
			continue
		}
		if strings.HasPrefix(path, pathHandler.prefix) {
			return pathHandler.handler, pathHandler.prefix, true
		}
	}
	return nil, "", false
}

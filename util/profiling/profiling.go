package profiling

import (
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/crowcoin/crowd/infrastructure/logger"
	"github.com/crowcoin/crowd/util/panics"
)

// Start serves the pprof endpoints on the given port. The handlers are
// mounted on a mux of their own so nothing registered on the default mux
// leaks onto the profiling listener.
func Start(port string, log *logger.Logger) {
	spawn := panics.GoroutineWrapperFunc(log)
	spawn(func() {
		mux := http.NewServeMux()
		mux.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		listenAddr := net.JoinHostPort("", port)
		log.Infof("Profiling server listening on %s", listenAddr)
		log.Error(http.ListenAndServe(listenAddr, mux))
	})
}

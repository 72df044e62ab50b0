package webchat

import (
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Router owns the HTTP surface of the chat relay: the two chat operations plus
// the read-only stats and health utilities.
type Router struct {
	mux    *http.ServeMux
	svc    ChatHTTPService
	logger zerolog.Logger
}

func NewRouter(svc ChatHTTPService, logger zerolog.Logger) (*Router, error) {
	if svc == nil {
		return nil, errors.New("webchat router: chat service is nil")
	}
	r := &Router{
		mux:    http.NewServeMux(),
		svc:    svc,
		logger: logger.With().Str("component", "webchat").Logger(),
	}
	r.registerHTTPHandlers()
	return r, nil
}

func (r *Router) registerHTTPHandlers() {
	r.mux.HandleFunc("POST /chat/message", NewChatMessageHTTPHandler(r.svc, r.logger))
	r.mux.HandleFunc("GET /chat/history/{sessionId}", NewHistoryHTTPHandler(r.svc, r.logger))
	r.mux.HandleFunc("GET /chat/stats/{sessionId}", NewStatsHTTPHandler(r.svc, r.logger))
	r.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns the router mux.
func (r *Router) Handler() http.Handler { return r.mux }

// Mount attaches all handlers to a parent mux with the given prefix.
// http.ServeMux does not strip prefixes, so we must use StripPrefix explicitly.
func (r *Router) Mount(mux *http.ServeMux, prefix string) {
	if prefix == "" || prefix == "/" {
		mux.Handle("/", r.mux)
		return
	}
	prefix = strings.TrimRight(prefix, "/")
	mux.Handle(prefix+"/", http.StripPrefix(prefix, r.mux))
	mux.HandleFunc(prefix, func(w http.ResponseWriter, r0 *http.Request) {
		http.Redirect(w, r0, prefix+"/", http.StatusPermanentRedirect)
	})
}

// BuildHTTPServer constructs an http.Server for the router with bounded
// request lifetimes.
func (r *Router) BuildHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

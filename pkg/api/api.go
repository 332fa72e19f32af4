package api

import (
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/core-tools/hsu-desk/pkg/domain"
	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/outputsink"
)

// LogTail is the record history plus live feed the websocket tail reads from
type LogTail interface {
	Lines(unitName string) []outputsink.Event
	Subscribe(unitName string) (<-chan outputsink.Event, func())
}

// API serves the HTTP surface of the desk supervisor
type API struct {
	contract domain.Contract
	tail     LogTail
	logger   logging.Logger
	upgrader websocket.Upgrader

	mutex   sync.Mutex
	clients map[*tailClient]struct{}
}

func NewAPI(contract domain.Contract, tail LogTail, logger logging.Logger) *API {
	a := &API{
		contract: contract,
		tail:     tail,
		logger:   logger,
		clients:  make(map[*tailClient]struct{}),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      checkLocalOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return a
}

// Handler returns the chi router of every endpoint
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", a.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/units", func(r chi.Router) {
		r.Get("/", a.listUnits)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", a.getUnit)
			r.Get("/logs", a.getLogs)
			r.Get("/logs/ws", a.tailLogs)

			r.Group(func(r chi.Router) {
				r.Use(a.localMutation)
				r.Post("/start", a.startUnit)
				r.Post("/stop", a.stopUnit)
				r.Post("/restart", a.restartUnit)
				r.Delete("/logs", a.clearLogs)
			})
		})
	})

	return r
}

// CloseTails disconnects every live tail; hijacked connections are not
// closed by http.Server.Shutdown
func (a *API) CloseTails() {
	a.mutex.Lock()
	clients := make([]*tailClient, 0, len(a.clients))
	for c := range a.clients {
		clients = append(clients, c)
	}
	a.mutex.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (a *API) addClient(c *tailClient) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.clients[c] = struct{}{}
}

func (a *API) removeClient(c *tailClient) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.clients, c)
}

// localMutation guards state-changing routes against requests a foreign page
// can forge: the caller must be local and any body must be JSON, which a
// browser will not send cross-origin without a preflight
func (a *API) localMutation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !checkLocalOrigin(r) || !checkLocalReferer(r) {
			a.logger.Warnf("Rejected %s %s from origin %q, referer %q",
				r.Method, r.URL.Path, r.Header.Get("Origin"), r.Header.Get("Referer"))
			a.respondError(w, errors.NewPermissionError("cross-origin request rejected", nil))
			return
		}
		if r.ContentLength != 0 {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				a.respondJSON(w, http.StatusUnsupportedMediaType, errorResponse{
					Error: "request body must be application/json",
					Type:  string(errors.ErrorTypeValidation),
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Debugf("HTTP %s %s -> %d in %v, request: %s",
			r.Method, r.URL.Path, ww.Status(), time.Since(started), chimiddleware.GetReqID(r.Context()))
	})
}

// Package httpapi exposes the controllers of a node over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liuck8080/OnchainQuant/core/actor"
	"github.com/liuck8080/OnchainQuant/core/app"
	"github.com/liuck8080/OnchainQuant/core/host"
	"github.com/liuck8080/OnchainQuant/core/quant"
)

// CallerHeader carries the identity a trigger is sent as.
const CallerHeader = "X-Quant-Caller"

// maxAdvance bounds a single advance request.
const maxAdvance = 10_000

// Backend is what the server drives. *app.App implements it.
type Backend interface {
	Programs() []host.ActorID
	State(ctx context.Context, id host.ActorID) (*quant.StateView, error)
	Tokens(ctx context.Context, id host.ActorID) ([]quant.TokenInfo, error)
	Send(ctx context.Context, src, dst host.ActorID, msgType string, payload []byte) ([]byte, error)
	Advance(ctx context.Context, n uint32) ([]host.Dispatch, error)
	Height() uint32
}

var _ Backend = (*app.App)(nil)

var triggers = map[string]string{
	"start":          quant.MsgStart,
	"stop":           quant.MsgStop,
	"act":            quant.MsgAct,
	"gas_reserve":    quant.MsgGasReserve,
	"register_token": quant.MsgRegisterToken,
	"terminate":      quant.MsgTerminate,
}

type Options struct {
	Log *slog.Logger
	// AllowAdvance enables POST /advance. Daemons producing blocks on a
	// timer leave it off.
	AllowAdvance bool
}

type Server struct {
	backend       Backend
	log           *slog.Logger
	allowAdvance  bool
	errorHandlers []errorHandler
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dispatchResponse struct {
	Type    string          `json:"type"`
	Dest    string          `json:"dest"`
	Height  uint32          `json:"height"`
	Reply   json.RawMessage `json:"reply,omitempty"`
	Error   string          `json:"error,omitempty"`
	Dropped string          `json:"dropped,omitempty"`
}

type advanceResponse struct {
	Height     uint32             `json:"height"`
	Dispatches []dispatchResponse `json:"dispatches"`
}

func NewServer(backend Backend, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Server{
		backend:      backend,
		log:          opts.Log.With(slog.String("component", "http")),
		allowAdvance: opts.AllowAdvance,
		errorHandlers: []errorHandler{
			sentinelHandler(app.ErrUnknownProgram, http.StatusNotFound, "program_not_found"),
			sentinelHandler(host.ErrProgramNotFound, http.StatusNotFound, "program_not_found"),
			sentinelHandler(host.ErrProgramExited, http.StatusGone, "program_exited"),
			sentinelHandler(actor.ErrStopped, http.StatusServiceUnavailable, "program_stopped"),
			sentinelHandler(actor.ErrDecode, http.StatusBadRequest, "bad_request"),
			sentinelHandler(quant.ErrOwnerReservationMissing, http.StatusConflict, "owner_reservation_missing"),
			sentinelHandler(quant.ErrZeroInterval, http.StatusConflict, "zero_interval"),
			sentinelHandler(quant.ErrScheduleOverflow, http.StatusConflict, "schedule_overflow"),
			sentinelHandler(host.ErrReservationExhausted, http.StatusPaymentRequired, "reservation_exhausted"),
			sentinelHandler(host.ErrReservationExpired, http.StatusPaymentRequired, "reservation_expired"),
			sentinelHandler(host.ErrCapacityExceeded, http.StatusPaymentRequired, "capacity_exceeded"),
		},
	}
}

// Routes returns the router. Callers may mount more handlers on it.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/height", s.getHeight)
	r.Post("/advance", s.advance)
	r.Route("/programs", func(r chi.Router) {
		r.Get("/", s.listPrograms)
		r.Get("/{id}/state", s.getState)
		r.Get("/{id}/tokens", s.getTokens)
		r.Post("/{id}/triggers/{trigger}", s.postTrigger)
	})
	return r
}

func (s *Server) getHeight(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint32{"height": s.backend.Height()})
}

func (s *Server) listPrograms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]host.ActorID{"programs": s.backend.Programs()})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	v, err := s.backend.State(r.Context(), host.ActorID(chi.URLParam(r, "id")))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.backend.Tokens(r.Context(), host.ActorID(chi.URLParam(r, "id")))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quant.TokenList{Tokens: tokens})
}

func (s *Server) postTrigger(w http.ResponseWriter, r *http.Request) {
	msgType, ok := triggers[chi.URLParam(r, "trigger")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_trigger", "unknown trigger "+chi.URLParam(r, "trigger"))
		return
	}
	caller := r.Header.Get(CallerHeader)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "bad_request", CallerHeader+" header is required")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	id := host.ActorID(chi.URLParam(r, "id"))
	reply, err := s.backend.Send(r.Context(), host.ActorID(caller), id, msgType, payload)
	if errors.Is(err, actor.ErrExited) && msgType == quant.MsgTerminate {
		writeJSON(w, http.StatusOK, quant.Event{Kind: quant.EventTerminate})
		return
	}
	if err != nil {
		s.handleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	if !s.allowAdvance {
		writeError(w, http.StatusForbidden, "advance_disabled", "blocks are produced by the node")
		return
	}
	n := uint64(1)
	if q := r.URL.Query().Get("n"); q != "" {
		var err error
		n, err = strconv.ParseUint(q, 10, 32)
		if err != nil || n == 0 || n > maxAdvance {
			writeError(w, http.StatusBadRequest, "bad_request", "n must be between 1 and "+strconv.Itoa(maxAdvance))
			return
		}
	}

	ds, err := s.backend.Advance(r.Context(), uint32(n))
	if err != nil {
		s.handleError(w, err)
		return
	}
	resp := advanceResponse{Height: s.backend.Height(), Dispatches: make([]dispatchResponse, 0, len(ds))}
	for _, d := range ds {
		dr := dispatchResponse{
			Type:    d.Message.Type,
			Dest:    string(d.Message.Dest),
			Height:  d.Message.Height,
			Reply:   d.Reply,
			Dropped: d.Dropped,
		}
		if d.Err != nil {
			dr.Error = d.Err.Error()
		}
		resp.Dispatches = append(resp.Dispatches, dr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestLog emits one line per request.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug(
			"http_request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	})
}

// errorHandler writes a response if it recognizes err.
type errorHandler func(w http.ResponseWriter, err error) bool

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.log.Debug("request rejected", slog.Any("error", err))
			return
		}
	}
	s.log.Error("internal error", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/usecase"
	"github.com/advisory-lab/themis/pkg/utils/errutil"
	"github.com/advisory-lab/themis/pkg/utils/logging"
	"github.com/advisory-lab/themis/pkg/utils/safe"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
)

// TurnIDHeader carries the turn ID of a guidance response so callers can
// reference the audit record.
const TurnIDHeader = "X-Themis-Turn-Id"

type Server struct {
	router *chi.Mux
	uc     *usecase.UseCases
}

type Options func(*Server)

func New(uc *usecase.UseCases, opts ...Options) (*Server, error) {
	if uc == nil {
		return nil, goerr.New("use cases are required")
	}

	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/guidance", s.guidanceHandler)
		r.Get("/audits/{turnID}", s.auditGetHandler)
		r.Get("/audits", s.auditListHandler)
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// guidanceRequest is the wire shape of one customer turn
type guidanceRequest struct {
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
	Strategy   string `json:"strategy,omitempty"`
	History    []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"history,omitempty"`
	Profile *struct {
		Segment    string            `json:"segment,omitempty"`
		Flags      []string          `json:"flags,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"profile,omitempty"`
	ExpectedTurns int `json:"expected_turns,omitempty"`
}

// guidanceHandler streams the guidance response as chunked plain text.
// The turn ID goes out as a header before the first chunk; the validation
// outcome is only visible through the audit endpoints because headers are
// committed before post-stream validation completes.
func (s *Server) guidanceHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req guidanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to decode guidance request"), http.StatusBadRequest)
		return
	}
	if req.CustomerID == "" || req.Message == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("customer_id and message are required"), http.StatusBadRequest)
		return
	}

	input, err := buildGuidanceInput(&req)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	// Pre-assigning the turn ID lets the header go out before the first
	// chunk commits the response.
	input.TurnID = model.NewTurnID()

	flusher, _ := w.(http.Flusher)
	headerWritten := false

	result, err := s.uc.ProvideGuidance(ctx, input, func(chunk string) error {
		if !headerWritten {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set(TurnIDHeader, string(input.TurnID))
			w.WriteHeader(http.StatusOK)
			headerWritten = true
		}
		if _, werr := w.Write([]byte(chunk)); werr != nil {
			return goerr.Wrap(werr, "client write failed")
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if headerWritten {
			// Too late for an error status; the stream just ends short.
			errutil.Handle(ctx, err, "guidance stream aborted")
			return
		}
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	if !headerWritten {
		w.Header().Set(TurnIDHeader, string(result.TurnID))
		w.WriteHeader(http.StatusOK)
	}
	logging.From(ctx).Info("guidance turn complete",
		"turnID", result.TurnID,
		"delivered", result.Delivered,
		"degraded", result.Degraded,
	)
}

func buildGuidanceInput(req *guidanceRequest) (*usecase.GuidanceInput, error) {
	input := &usecase.GuidanceInput{
		CustomerID:    req.CustomerID,
		Message:       req.Message,
		ExpectedTurns: req.ExpectedTurns,
	}

	if req.Strategy != "" {
		strategy, err := types.ParseValidationStrategy(req.Strategy)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid strategy", goerr.V("strategy", req.Strategy))
		}
		input.Strategy = strategy
	}

	for _, turn := range req.History {
		role := model.TurnRole(turn.Role)
		if role != model.RoleCustomer && role != model.RoleAdvisor {
			return nil, goerr.New("invalid turn role", goerr.V("role", turn.Role))
		}
		input.History = append(input.History, model.Turn{
			Role: role,
			Text: turn.Text,
		})
	}

	if p := req.Profile; p != nil {
		input.Profile = &model.CustomerProfile{
			CustomerID: req.CustomerID,
			Segment:    p.Segment,
			Flags:      p.Flags,
			Attributes: p.Attributes,
		}
	}

	return input, nil
}

// auditGetHandler serves one audit record as JSON
func (s *Server) auditGetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	turnID := model.TurnID(chi.URLParam(r, "turnID"))
	audit, err := s.uc.GetAudit(ctx, turnID)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusNotFound)
		return
	}

	writeJSON(ctx, w, audit)
}

// auditListHandler serves the most recent audit records
func (s *Server) auditListHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	audits, err := s.uc.ListRecentAudits(ctx, limit)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, map[string]any{"audits": audits})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	safe.Write(ctx, w, data)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	safe.Write(r.Context(), w, []byte(`{"status":"ok"}`))
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

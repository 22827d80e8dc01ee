package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/sirupsen/logrus"

	"termslens/internal/domain"
	"termslens/internal/messaging"
	"termslens/internal/services/coordinator"
	"termslens/internal/services/records"
	"termslens/internal/services/sites"
)

const (
	defaultWaitTimeout = 30
	maxWaitTimeout     = 120
	maxBodyBytes       = 4 << 20
)

// Server exposes the coordinator over HTTP and WebSocket.
type Server struct {
	coord   *coordinator.Service
	bus     *messaging.Bus
	metrics http.Handler
	log     logrus.FieldLogger
}

// New builds the server. metrics may be nil to leave /metrics unmounted.
func New(coord *coordinator.Service, bus *messaging.Bus, metrics http.Handler, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{coord: coord, bus: bus, metrics: metrics, log: log}
}

// Routes returns the chi router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/categories", s.getCategories)
	r.Get("/sites", s.listSites)
	r.Route("/sites/{domain}", func(r chi.Router) {
		r.Get("/", s.getSite)
		r.Delete("/", s.deleteSite)
		r.Post("/scan", s.postScan)
		r.Post("/ask", s.postAsk)
	})
	r.Post("/messages", s.postMessage)
	r.Get("/ws", s.serveWS)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed":    time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Categories())
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	all, err := s.coord.List(r.Context())
	if err != nil {
		if !errors.Is(err, domain.ErrCacheUnavailable) {
			s.writeErr(w, err)
			return
		}
		w.Header().Set("Warning", `199 - "record store unavailable"`)
	}
	out := make([]domain.View, 0, len(all))
	for _, a := range all {
		out = append(out, s.coord.View(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	host, ok := s.domainParam(w, r)
	if !ok {
		return
	}
	a, err := s.coord.Current(r.Context(), host)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheUnavailable) || a.Site.Domain == "" {
			s.writeErr(w, err)
			return
		}
		w.Header().Set("Warning", `199 - "record store unavailable"`)
	}
	writeJSON(w, http.StatusOK, s.coord.View(a))
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	host, ok := s.domainParam(w, r)
	if !ok {
		return
	}
	a, err := s.coord.Invalidate(r.Context(), host)
	if errors.Is(err, records.ErrScanInFlight) {
		writeJSON(w, http.StatusConflict, s.coord.View(a))
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.View(a))
}

// ScanBody is the optional body of POST /sites/{domain}/scan.
type ScanBody struct {
	URL  string             `json:"url,omitempty" validate:"omitempty,max=2048"`
	Hint domain.Category    `json:"hint,omitempty" validate:"omitempty,oneof=saas ecommerce healthcare fintech social default"`
	Page *domain.Page       `json:"page,omitempty"`
	Scan *domain.ScanResult `json:"scan,omitempty"`
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	host, ok := s.domainParam(w, r)
	if !ok {
		return
	}
	var wait bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	timeout := defaultWaitTimeout
	if err := runtime.BindQueryParameter("form", true, false, "timeout", r.URL.Query(), &timeout); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if timeout <= 0 || timeout > maxWaitTimeout {
		timeout = defaultWaitTimeout
	}

	var body ScanBody
	if err := decodeBody(r, &body, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Page != nil && body.Scan != nil {
		writeError(w, http.StatusBadRequest, "send either a page or a scan, not both")
		return
	}
	target := host
	if body.URL != "" {
		site, err := sites.Identify(body.URL)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		if site.Domain != host {
			writeError(w, http.StatusBadRequest, "url "+body.URL+" is not on "+host)
			return
		}
		target = body.URL
	}

	ctx := r.Context()
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}
	out, err := s.coord.Rescan(ctx, coordinator.ScanInput{URL: target, Hint: body.Hint, Page: body.Page, Scan: body.Scan, Wait: wait})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	resp := s.coord.RescanResponse(out)
	switch {
	case !out.Started:
		writeJSON(w, http.StatusConflict, resp)
	case out.Done:
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}

type askBody struct {
	Question string `json:"question" validate:"required,max=2000"`
}

func (s *Server) postAsk(w http.ResponseWriter, r *http.Request) {
	host, ok := s.domainParam(w, r)
	if !ok {
		return
	}
	var body askBody
	if err := decodeBody(r, &body, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ans, err := s.coord.Ask(r.Context(), host, body.Question)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messaging.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope: "+err.Error())
		return
	}
	if err := checkEnvelope(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.bus.Dispatch(r.Context(), req))
}

// checkEnvelope rejects envelopes a client may not send. Only the coordinator
// is reachable from outside; the agent is driven by the coordinator alone.
func checkEnvelope(req messaging.Request) error {
	if req.Action == "" {
		return errors.New("envelope has no action")
	}
	if req.Target != "" && req.Target != messaging.TargetCoordinator {
		return errors.New("target " + string(req.Target) + " is not reachable from clients")
	}
	return nil
}

// domainParam binds and normalizes the {domain} path segment.
func (s *Server) domainParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var raw string
	err := runtime.BindStyledParameterWithOptions("simple", "domain", chi.URLParam(r, "domain"), &raw,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid format for parameter domain: "+err.Error())
		return "", false
	}
	site, err := sites.Identify(raw)
	if err != nil {
		s.writeErr(w, err)
		return "", false
	}
	return site.Domain, true
}

func decodeBody(r *http.Request, v any, optional bool) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(raw) == 0 && optional {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("invalid body: " + err.Error())
	}
	return messaging.Validate(v)
}

// writeErr maps domain error kinds onto status codes.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if kind, ok := domain.KindOf(err); ok {
		switch kind {
		case domain.KindInvalidDomain:
			code = http.StatusBadRequest
		case domain.KindScanUnavailable:
			code = http.StatusBadGateway
		case domain.KindCacheUnavailable:
			code = http.StatusServiceUnavailable
		case domain.KindAnalysisFailed:
			code = http.StatusInternalServerError
		}
	} else if errors.Is(err, records.ErrScanInFlight) {
		code = http.StatusConflict
	}
	if code >= 500 {
		s.log.WithError(err).Warn("request failed")
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Package debugapi exposes the simulator's local control surface: inspect
// lifecycle and backend state, drive session transitions and inject
// platform events without a real device.
package debugapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/factorylink/factorylink/internal/deviceinfo"
	"github.com/factorylink/factorylink/internal/lifecycle"
	"github.com/factorylink/factorylink/internal/provider/resilience"
	"github.com/factorylink/factorylink/internal/session"
	"github.com/factorylink/factorylink/internal/transport"
)

// RouterConfig holds configuration for the debug router.
type RouterConfig struct {
	Version    string
	Logger     zerolog.Logger
	Controller *lifecycle.Controller
	Adapter    *transport.Adapter
	Runtime    *transport.MemoryRuntime
	Sessions   *session.Store
	Device     deviceinfo.Info
	Health     *resilience.HealthRegistry

	// RequestLimit per minute per IP. Default: 120.
	RequestLimit int
}

// NewRouter creates the simulator debug router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	requestLimit := cfg.RequestLimit
	if requestLimit == 0 {
		requestLimit = 120
	}

	h := &handlers{cfg: cfg}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.Limit(requestLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP)))

	r.Get("/healthz", h.healthz)
	r.Get("/state", h.state)
	r.Get("/backends", h.backends)

	r.Route("/session", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
	})

	r.Route("/device", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/unregister", h.unregister)
	})

	r.Route("/simulate", func(r chi.Router) {
		r.Post("/deliver", h.deliver)
		r.Post("/tap", h.tap)
		r.Post("/rotate-token", h.rotateToken)
	})

	return r
}

type handlers struct {
	cfg RouterConfig
}

type stateResponse struct {
	AdapterState  string `json:"adapterState"`
	TokenStatus   string `json:"tokenStatus"`
	Registered    bool   `json:"registered"`
	BadgeCount    int    `json:"badgeCount"`
	Authenticated bool   `json:"authenticated"`
	FactoryID     string `json:"factoryId,omitempty"`
	DeviceID      string `json:"deviceId"`
	Platform      string `json:"platform"`
}

type notificationRequest struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data"`
	Source   string            `json:"source"`
	SourceID string            `json:"sourceId"`
}

type loginRequest struct {
	UserID      string `json:"userId"`
	FactoryID   string `json:"factoryId"`
	AccessToken string `json:"accessToken"`
}

type rotateTokenRequest struct {
	Token string `json:"token"`
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.cfg.Version,
	})
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	badge, err := h.cfg.Controller.BadgeCount(r.Context())
	if err != nil {
		badge = -1
	}

	resp := stateResponse{
		AdapterState: string(h.cfg.Adapter.State()),
		TokenStatus:  string(h.cfg.Adapter.Token(r.Context()).Status),
		Registered:   h.cfg.Controller.Registered(),
		BadgeCount:   badge,
		DeviceID:     h.cfg.Device.DeviceID,
		Platform:     string(h.cfg.Device.Platform),
	}
	if sess, ok := h.cfg.Sessions.Current(); ok {
		resp.Authenticated = true
		resp.FactoryID = sess.FactoryID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) backends(w http.ResponseWriter, _ *http.Request) {
	type backend struct {
		Name          string     `json:"name"`
		Healthy       bool       `json:"healthy"`
		CircuitState  string     `json:"circuitState"`
		LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
		LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
		LastError     string     `json:"lastError,omitempty"`
	}

	all := h.cfg.Health.AllHealth()
	out := make([]backend, 0, len(all))
	for _, res := range all {
		out = append(out, backend{
			Name:          res.Name,
			Healthy:       res.Healthy(),
			CircuitState:  res.CircuitState.String(),
			LastSuccessAt: res.LastSuccessAt,
			LastFailureAt: res.LastFailureAt,
			LastError:     res.LastError,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": out})
}

// login authenticates the simulated session, either from an access token
// carrying uid/fid claims or from explicit IDs.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.AccessToken != "" && req.UserID == "" {
		sess, err := h.cfg.Sessions.LoginWithToken(req.AccessToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"userId":    sess.UserID,
			"factoryId": sess.FactoryID,
		})
		return
	}

	if req.UserID == "" || req.FactoryID == "" {
		writeError(w, http.StatusBadRequest, "userId and factoryId are required")
		return
	}
	h.cfg.Sessions.Login(session.Session{
		UserID:      req.UserID,
		FactoryID:   req.FactoryID,
		AccessToken: req.AccessToken,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"userId":    req.UserID,
		"factoryId": req.FactoryID,
	})
}

func (h *handlers) logout(w http.ResponseWriter, _ *http.Request) {
	h.cfg.Sessions.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Controller.RegisterDevice(r.Context()); err != nil {
		h.cfg.Logger.Warn().Err(err).Msg("manual registration failed")
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) unregister(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Controller.UnregisterDevice(r.Context()); err != nil {
		h.cfg.Logger.Warn().Err(err).Msg("manual unregistration failed")
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deliver(w http.ResponseWriter, r *http.Request) {
	n, ok := decodeNotification(w, r)
	if !ok {
		return
	}
	h.cfg.Runtime.Deliver(n)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) tap(w http.ResponseWriter, r *http.Request) {
	n, ok := decodeNotification(w, r)
	if !ok {
		return
	}
	h.cfg.Runtime.Tap(n)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) rotateToken(w http.ResponseWriter, r *http.Request) {
	var req rotateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	h.cfg.Runtime.RotateToken(req.Token)
	w.WriteHeader(http.StatusAccepted)
}

func decodeNotification(w http.ResponseWriter, r *http.Request) (transport.Notification, bool) {
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return transport.Notification{}, false
	}

	data := req.Data
	if data == nil {
		data = make(map[string]string)
	}
	if req.Source != "" {
		data["source"] = req.Source
	}
	if req.SourceID != "" {
		data["sourceId"] = req.SourceID
	}

	return transport.Notification{
		Title:      req.Title,
		Body:       req.Body,
		Data:       data,
		ReceivedAt: time.Now(),
	}, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // response already committed
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

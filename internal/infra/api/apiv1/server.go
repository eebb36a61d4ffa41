package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/usecase"
)

// TokenIssuer exchanges the admin password for a bearer token.
type TokenIssuer interface {
	Login(password string) (token string, expiresAt time.Time, err error)
}

type Server struct {
	stats  usecase.StatsUseCase
	users  usecase.UserUseCase
	sync   usecase.ProvisioningUseCase
	tokens TokenIssuer
	log    *zerolog.Logger
}

func NewServer(stats usecase.StatsUseCase, users usecase.UserUseCase, sync usecase.ProvisioningUseCase, tokens TokenIssuer, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{stats: stats, users: users, sync: sync, tokens: tokens, log: &l}
}

// RegisterAPIV1 mounts the admin routes; guard wraps everything except login.
func RegisterAPIV1(r chi.Router, s *Server, guard func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Group(func(r chi.Router) {
			if guard != nil {
				r.Use(guard)
			}
			r.Get("/stats", s.getStats)
			r.Get("/users/{tg_id}", s.getUser)
			r.Post("/configs/sync", s.syncConfigs)
		})
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Config struct {
	ID        int64      `json:"id"`
	FileName  string     `json:"file_name"`
	Device    string     `json:"device"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type User struct {
	TelegramID    int64      `json:"tg_id"`
	Username      string     `json:"username"`
	Phone         *string    `json:"phone,omitempty"`
	Email         *string    `json:"email,omitempty"`
	DaysLeft      int        `json:"subscribe_days_left"`
	Credits       int        `json:"credits"`
	ReferrerID    *int64     `json:"referrer_id,omitempty"`
	IsTrial       bool       `json:"is_trial"`
	LastPaymentAt *time.Time `json:"last_payment_at,omitempty"`
	Configs       []Config   `json:"configs"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	tok, exp, err := s.tokens.Login(req.Password)
	if err != nil {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("admin login rejected")
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "bad credentials"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, ExpiresAt: exp})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Totals(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tg_id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "tg_id must be a positive integer"})
		return
	}
	view, err := s.users.Account(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	u := view.User
	out := User{
		TelegramID:    u.TelegramID,
		Username:      u.Username,
		Phone:         u.Phone,
		Email:         u.Email,
		DaysLeft:      u.SubscribeDaysLeft,
		Credits:       u.Credits,
		ReferrerID:    u.ReferrerID,
		IsTrial:       u.IsTrial,
		LastPaymentAt: u.LastPaymentAt,
		Configs:       make([]Config, 0, len(view.Configs)),
	}
	for _, c := range view.Configs {
		out.Configs = append(out.Configs, Config{ID: c.ID, FileName: c.FileName, Device: string(c.Device), ExpiresAt: c.ExpiresAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) syncConfigs(w http.ResponseWriter, r *http.Request) {
	// sync keeps running if the client disconnects
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Minute)
	defer cancel()
	res, err := s.sync.Sync(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.log.Error().Err(err).Msg("admin api request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cawio/snake/internal/game"
)

type adminHandler struct {
	auth *Auth
	game *game.Game
	log  *zap.SugaredLogger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// adminConfig is the live view of the rules. Only ScoreIncrement can be
// changed at runtime.
type adminConfig struct {
	GridSize          int   `json:"grid_size"`
	TickIntervalMs    int64 `json:"tick_interval_ms"`
	ScoreIncrement    *int  `json:"score_increment,omitempty"`
	ResumeOnReconnect bool  `json:"resume_on_reconnect"`
}

// POST /admin/login {username, password} -> {token}
func (a *adminHandler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	token, err := a.auth.Login(req.Username, req.Password, extractIP(r))
	switch {
	case errors.Is(err, ErrAdminDisabled):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, ErrTooManyAttempts):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case err != nil:
		a.log.Warnw("admin login failed", "username", req.Username, "ip", extractIP(r))
		http.Error(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *adminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.auth.Enabled() {
			http.Error(w, ErrAdminDisabled.Error(), http.StatusNotFound)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := a.auth.ValidateToken(token); err != nil {
			http.Error(w, ErrInvalidToken.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GET /admin/config returns the rules, POST updates the tunable ones
func (a *adminHandler) config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := a.game.Config()
		inc := cfg.ScoreIncrement
		writeJSON(w, http.StatusOK, adminConfig{
			GridSize:          cfg.GridSize,
			TickIntervalMs:    cfg.TickInterval.Milliseconds(),
			ScoreIncrement:    &inc,
			ResumeOnReconnect: cfg.ResumeOnReconnect,
		})
	case http.MethodPost:
		var body adminConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.ScoreIncrement != nil {
			if *body.ScoreIncrement < 0 {
				http.Error(w, "score_increment must not be negative", http.StatusBadRequest)
				return
			}
			a.game.SetScoreIncrement(*body.ScoreIncrement)
		}
		a.log.Infow("config updated", "score_increment", a.game.ScoreIncrement())
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

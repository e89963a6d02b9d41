package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/revelly2/smart-store-front/domain"
)

type userRow struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
	Name     string `db:"name"`
	Password string `db:"password"`
	Role     string `db:"role"`
}

func (u userRow) identity() domain.Identity {
	return domain.Identity{ID: u.ID, Username: u.Username, Role: domain.Role(u.Role), Name: u.Name}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	var user userRow
	err := h.db.Get(&user, `SELECT id, username, name, password, role FROM users WHERE username = ?`, username)
	if err != nil {
		h.countLogin("rejected")
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		h.countLogin("rejected")
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	identity := user.identity()
	token, err := h.generateToken(identity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	h.countLogin("success")
	h.logger.Info("user signed in", zap.String("username", identity.Username), zap.String("role", string(identity.Role)))
	respondJSON(w, http.StatusOK, domain.LoginResult{User: identity, Token: token})
}

func (h *Handler) countLogin(result string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	uid := identityFrom(r.Context()).ID
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.Exec(`UPDATE users SET password = ? WHERE id = ?`, string(hashed), uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

type createUserRequest struct {
	Username string      `json:"username"`
	Name     string      `json:"name"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	if req.Username == "" || req.Name == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username, name and password are required")
		return
	}
	if !req.Role.Valid() {
		respondError(w, http.StatusBadRequest, "role must be admin or cashier")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	res, err := h.db.Exec(`INSERT INTO users (username, name, password, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		req.Username, req.Name, string(hashed), string(req.Role), formatTime(h.now()))
	if err != nil {
		respondError(w, http.StatusConflict, "username already exists")
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create user")
		return
	}
	respondJSON(w, http.StatusCreated, domain.Identity{ID: id, Username: req.Username, Role: req.Role, Name: req.Name})
}

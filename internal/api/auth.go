package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/npezzotti/campus-connect/internal/auth"
	"github.com/npezzotti/campus-connect/internal/database"
	"github.com/npezzotti/campus-connect/internal/types"
)

const (
	msgUsernameTaken      = "Username already exists"
	msgEmailTaken         = "Email already exists"
	msgInvalidCredentials = "Invalid username or password"
	msgMissingFields      = "Username, email and password are required"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string     `json:"token"`
	Username string     `json:"username"`
	Role     types.Role `json:"role"`
}

func (s *CampusApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.writeText(w, http.StatusBadRequest, msgMissingFields)
		return
	}

	taken, err := s.db.UsernameExists(r.Context(), req.Username)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if taken {
		s.writeText(w, http.StatusBadRequest, msgUsernameTaken)
		return
	}

	taken, err = s.db.EmailExists(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if taken {
		s.writeText(w, http.StatusBadRequest, msgEmailTaken)
		return
	}

	pwdHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	dbUser, err := s.db.CreateUser(r.Context(), database.CreateUserParams{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwdHash,
		Role:         string(types.RoleUser),
	})
	switch {
	case errors.Is(err, database.ErrUsernameTaken):
		s.writeText(w, http.StatusBadRequest, msgUsernameTaken)
		return
	case errors.Is(err, database.ErrEmailTaken):
		s.writeText(w, http.StatusBadRequest, msgEmailTaken)
		return
	case err != nil:
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.issueToken(w, toUser(dbUser))
}

func (s *CampusApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbUser, err := s.db.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if errors.Is(err, database.ErrNotFound) {
		s.writeText(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !auth.VerifyPassword(dbUser.PasswordHash, req.Password) {
		s.writeText(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	s.issueToken(w, toUser(dbUser))
}

func (s *CampusApp) issueToken(w http.ResponseWriter, user types.User) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, AuthResponse{
		Token:    token,
		Username: user.Username,
		Role:     user.Role,
	})
}

func (s *CampusApp) session(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	dbUser, err := s.db.GetUserById(r.Context(), identity.UserId)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, NewNotFoundError())
		return
	}
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(dbUser))
}

func toUser(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		Email:     u.Email,
		Role:      types.Role(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

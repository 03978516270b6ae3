package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/cliplens/cliplens/internal/store"
)

// LoginRequest asks for a session. The deployment has one shared access
// password; the name only scopes the session and its stored videos.
type LoginRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	passwordHash []byte
	jwtService   *JWTService
	validator    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler. passwordHash is the bcrypt hash
// of the shared access password.
func NewAuthHandler(passwordHash string, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{
		passwordHash: []byte(passwordHash),
		jwtService:   jwtService,
		validator:    validator.New(),
	}
}

// Login handles login requests.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		http.Error(w, extractValidationErrors(err), http.StatusBadRequest)
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil {
		authErr := &ErrInvalidCredentials{}
		http.Error(w, authErr.Error(), HTTPStatus(authErr))
		return
	}

	userID := store.SanitizeUserID(req.Name)
	token, err := h.jwtService.GenerateToken(userID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(LoginResponse{Name: userID, Token: token})
}

// extractValidationErrors formats validator errors into a readable message.
func extractValidationErrors(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "validation failed"
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

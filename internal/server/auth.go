package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/config"
	"github.com/planwise/plancheck/internal/server/middleware"
)

// Claims are the JWT claims carried by plancheck API tokens. Subject
// identifies the calling service or operator.
type Claims struct {
	SubjectID uuid.UUID `json:"subject_id"`
	jwt.RegisteredClaims
}

// GetSubjectID implements middleware.SubjectGetter.
func (c *Claims) GetSubjectID() uuid.UUID {
	return c.SubjectID
}

// JWTService generates and validates plancheck API tokens.
type JWTService struct {
	config *config.JWTConfig
}

// NewJWTService creates a JWT service with the given configuration.
func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{config: cfg}
}

// AsTokenValidator adapts the service to middleware.TokenValidator without
// an import cycle.
func (s *JWTService) AsTokenValidator() middleware.TokenValidator {
	return &jwtServiceValidator{service: s}
}

type jwtServiceValidator struct {
	service *JWTService
}

func (v *jwtServiceValidator) ValidateToken(tokenString string) (middleware.SubjectGetter, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// GenerateToken signs a token for the given subject.
func (s *JWTService) GenerateToken(subject uuid.UUID) (string, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(s.config.ExpirationHours) * time.Hour)

	claims := &Claims{
		SubjectID: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and validates a token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	return claims, nil
}

// loadServiceKeyHash reads the bcrypt hash of the accepted service key.
// Empty means the token exchange endpoint is disabled.
func loadServiceKeyHash() string {
	return os.Getenv("SERVICE_KEY_HASH")
}

// tokenRequest is the body of POST /auth/token.
type tokenRequest struct {
	ServiceKey string `json:"service_key"`
}

// handleToken exchanges the shared service key for a signed API token. The
// key is verified against a bcrypt hash so the plaintext never lives in
// configuration.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.serviceKeyHash == "" {
		s.errorResponse(w, http.StatusNotFound, "Token exchange is not configured")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ServiceKey == "" {
		s.errorResponse(w, http.StatusBadRequest, "service_key is required")
		return
	}

	if !s.passwords.VerifyPassword(req.ServiceKey, s.serviceKeyHash) {
		log.Printf("[AUTH] rejected token exchange from %s", s.extractClientID(r))
		s.errorResponse(w, http.StatusUnauthorized, "Invalid service key")
		return
	}

	subject := uuid.New()
	token, err := s.jwtService.GenerateToken(subject)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"token":      token,
		"subject_id": subject,
		"expires_in": s.jwtConfig.ExpirationHours * 3600,
	})
}

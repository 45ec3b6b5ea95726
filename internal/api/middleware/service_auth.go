package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/traqcheck/bgv-agent/internal/api/shared"
)

const (
	// ServiceSecretHeader carries the shared service secret.
	ServiceSecretHeader = "X-Service-Secret"

	// ServiceSubject is the only accepted JWT subject.
	ServiceSubject = "workflow-backend"
)

var (
	errMissingCredentials = errors.New("no service credentials presented")
	errInvalidSecret      = errors.New("service secret does not match")
	errInvalidToken       = errors.New("invalid service token")
)

// ServiceAuth admits the workflow backend, identified either by a shared
// secret checked against a bcrypt hash or by an HS256 JWT.
type ServiceAuth struct {
	secretHash []byte
	jwtSecret  []byte
}

// NewServiceAuth creates the gate. Empty arguments disable that method.
func NewServiceAuth(secretHash, jwtSecret string) *ServiceAuth {
	return &ServiceAuth{
		secretHash: []byte(secretHash),
		jwtSecret:  []byte(jwtSecret),
	}
}

// Enabled reports whether any method is configured. A disabled gate admits
// every request.
func (a *ServiceAuth) Enabled() bool {
	return len(a.secretHash) > 0 || len(a.jwtSecret) > 0
}

// Handler wraps next with the gate.
func (a *ServiceAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		caller, err := a.authenticate(r)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Unauthorized", err,
				shared.WithElevatedLogLevel())
			return
		}

		next.ServeHTTP(w, r.WithContext(shared.SetCaller(r.Context(), caller)))
	})
}

func (a *ServiceAuth) authenticate(r *http.Request) (string, error) {
	if secret := r.Header.Get(ServiceSecretHeader); secret != "" && len(a.secretHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(a.secretHash, []byte(secret)); err != nil {
			return "", errInvalidSecret
		}
		return ServiceSubject, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" && len(a.jwtSecret) > 0 {
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return "", errInvalidToken
		}
		return a.verifyToken(token)
	}

	return "", errMissingCredentials
}

func (a *ServiceAuth) verifyToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return a.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", errors.Join(errInvalidToken, err)
	}
	if subtle.ConstantTimeCompare([]byte(claims.Subject), []byte(ServiceSubject)) != 1 {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// Package jwtauth guards control-plane endpoints with the shared EdDSA
// token scheme.
package jwtauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"

	"tgindex/lib/api/response"
	"tgindex/lib/sl"
)

// Verifier checks one bearer token against the endpoint's audience and the
// issuer allow-list.
type Verifier interface {
	VerifyToken(token string, allowedIssuers []string) (*jwt.RegisteredClaims, error)
}

type ctxKey struct{}

// CallerIssuer returns the issuer of the verified token, empty when the
// middleware is disabled.
func CallerIssuer(ctx context.Context) string {
	iss, _ := ctx.Value(ctxKey{}).(string)
	return iss
}

// New builds the middleware. A nil verifier disables authentication and
// only logs requests; production configs always carry a key.
func New(log *slog.Logger, verifier Verifier, allowedIssuers []string) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.jwtauth")
	if verifier == nil {
		log.With(mod).Warn("jwt verification disabled, accepting all requests")
	} else {
		log.With(mod, slog.Any("issuers", allowedIssuers)).Info("jwt middleware initialized")
	}

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			remote := r.RemoteAddr
			if xRemote := r.Header.Get("X-Forwarded-For"); xRemote != "" {
				remote = xRemote
			}
			logger := log.With(
				mod,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", remote),
				slog.String("request_id", id),
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				logger.With(
					slog.Int("status", ww.Status()),
					slog.Int("size", ww.BytesWritten()),
					slog.Float64("duration", time.Since(t1).Seconds()),
				).Info("incoming request")
			}()

			if verifier == nil {
				ww.Header().Set("X-Request-ID", id)
				next.ServeHTTP(ww, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				logger = logger.With(sl.Err(fmt.Errorf("authorization header not found")))
				authFailed(ww, r, "Authorization header not found")
				return
			}
			token := ""
			if strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}
			if token == "" {
				logger = logger.With(sl.Err(fmt.Errorf("bearer token not found")))
				authFailed(ww, r, "Bearer token not found")
				return
			}
			logger = logger.With(sl.Secret("token", token))

			claims, err := verifier.VerifyToken(token, allowedIssuers)
			if err != nil {
				logger = logger.With(sl.Err(err))
				authFailed(ww, r, "Invalid token")
				return
			}
			logger = logger.With(slog.String("issuer", claims.Issuer))

			ctx := context.WithValue(r.Context(), ctxKey{}, claims.Issuer)
			ww.Header().Set("X-Request-ID", id)
			next.ServeHTTP(ww, r.WithContext(ctx))
		}

		return http.HandlerFunc(fn)
	}
}

func authFailed(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Unauthorized(message))
}

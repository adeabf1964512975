package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/andreas-portfolio/water-quality-api/internal/metrics"
	"github.com/andreas-portfolio/water-quality-api/internal/store"
	"github.com/andreas-portfolio/water-quality-api/pkg/apierr"
)

type userKeyType struct{}

var userKey userKeyType

// requireUser validates the bearer token and resolves it to an active user
// before any business logic runs.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			apierr.Write(w, apierr.Unauthorized("missing bearer token"))
			return
		}
		claims, err := s.auth.ValidateToken(tokenStr, time.Now().UTC())
		if err != nil {
			apierr.Write(w, apierr.Unauthorized("invalid or expired token"))
			return
		}
		if claims.Subject == "" {
			apierr.Write(w, apierr.Unauthorized("invalid authentication credentials"))
			return
		}
		user, err := s.repo.FindUserByUsername(r.Context(), claims.Subject)
		if err != nil || !user.IsActive {
			apierr.Write(w, apierr.Unauthorized("invalid authentication credentials"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.HasPrefix(auth, "Bearer ") {
		return auth[7:]
	}
	return ""
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}

func withUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// CurrentUser returns the user resolved by requireUser, nil outside the
// authenticated group.
func CurrentUser(r *http.Request) *store.User {
	u, _ := r.Context().Value(userKey).(*store.User)
	return u
}

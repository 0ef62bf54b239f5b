package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Заголовки, через которые внешний провайдер аутентификации передаёт пользователя.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserStaff = "X-User-Staff"
)

type actorKey struct{}

// ActorFromContext возвращает пользователя запроса; анонимный запрос даёт нулевой Actor.
func ActorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}

// WithActor кладёт пользователя в контекст.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// identityMiddleware читает пользователя из заголовков.
// Некорректный X-User-ID отклоняется, отсутствующий означает анонимный запрос.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			respondJSON(w, http.StatusUnauthorized, detailResponse{Detail: "Invalid user identity."})
			return
		}

		staff := strings.TrimSpace(strings.ToLower(r.Header.Get(HeaderUserStaff)))
		actor := domain.Actor{UserID: userID, IsStaff: staff == "true" || staff == "1"}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// observeMiddleware логирует запрос и пишет HTTP-метрики по шаблону маршрута.
func observeMiddleware(logger *log.Entry, httpMetrics *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}

			if httpMetrics != nil {
				httpMetrics.Observe(r.Method, route, status, duration)
			}

			entry := requestLogger(r, logger).WithFields(log.Fields{
				"route":       route,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": duration.Milliseconds(),
			})
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request completed")
			case status >= http.StatusBadRequest:
				entry.Info("request completed")
			default:
				entry.Debug("request completed")
			}
		})
	}
}

func requestLogger(r *http.Request, logger *log.Entry) *log.Entry {
	fields := log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		fields["request_id"] = id
	}
	if actor := ActorFromContext(r.Context()); actor.Authenticated() {
		fields["user_id"] = actor.UserID
	}
	return logger.WithFields(fields)
}

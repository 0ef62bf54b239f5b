package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const maxBodyBytes = 1 << 20

const internalErrorMessage = "A server error occurred."

// detailResponse: тело ошибки без привязки к полю.
type detailResponse struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// errorResponse переводит доменную ошибку в HTTP-статус и тело ответа.
func errorResponse(err error) (int, any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return status, detailResponse{Detail: internalErrorMessage}
	}

	if status == http.StatusBadRequest {
		if fields := fieldErrors(err); len(fields) > 0 {
			return status, fields
		}
	}
	return status, detailResponse{Detail: errorMessage(err)}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fieldErrors собирает ошибки полей в формат {"field": ["message"]}.
func fieldErrors(err error) map[string][]string {
	var list domain.ValidationErrors
	if errors.As(err, &list) {
		out := make(map[string][]string, len(list))
		for _, fe := range list {
			out[fe.Field] = append(out[fe.Field], fe.Message)
		}
		return out
	}
	var fe *domain.FieldError
	if errors.As(err, &fe) {
		return map[string][]string{fe.Field: {fe.Message}}
	}
	return nil
}

func errorMessage(err error) string {
	var fe *domain.FieldError
	if errors.As(err, &fe) {
		return fe.Message
	}
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "Authentication credentials were not provided."
	case errors.Is(err, domain.ErrForbidden):
		return "You do not have permission to perform this action."
	}
	return err.Error()
}

// writeError пишет ответ об ошибке; внутренние ошибки логируются, но не раскрываются клиенту.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		requestLogger(r, h.logger).WithError(err).Error("request failed")
	}
	respondJSON(w, status, body)
}

// decodeJSON разбирает тело запроса; неизвестные поля игнорируются.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.NewFieldError("non_field_errors", "Unable to read request body.")
	}
	return decodeBytes(body, dst)
}

func decodeBytes(body []byte, dst any) error {
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return domain.NewFieldError(typeErr.Field, "Invalid value.")
		}
		return domain.NewFieldError("non_field_errors", "JSON parse error.")
	}
	return nil
}

// pathID разбирает числовой идентификатор из пути; некорректное значение означает notFound.
func pathID(r *http.Request, name string, notFound error) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound
	}
	return id, nil
}

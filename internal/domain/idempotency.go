package domain

import (
	"errors"
	"strings"
	"time"
)

// MaxIdempotencyKeyLength ограничивает клиентский ключ вместе с префиксом пользователя.
const MaxIdempotencyKeyLength = 255

// IdempotencyStatus: стадия обработки запроса с Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: ответ 2xx/3xx сохранён и отдаётся повторно.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: сохранён ответ 4xx.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

var (
	ErrIdempotencyKeyRequired         = kindError(ErrValidation, "idempotency key is required")
	ErrIdempotencyKeyTooLong          = kindError(ErrValidation, "idempotency key is too long")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists: живая запись с таким ключом уже есть.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ занят запросом с другим телом.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is already used with different request payload")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
)

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	}
	return false
}

// Expired сообщает, что ключ можно занять заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Replayable сообщает, что у записи есть сохранённый ответ для повтора.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status != IdempotencyStatusProcessing && r.HTTPStatus > 0 && len(r.ResponseBody) > 0
}

// NormalizeIdempotencyInput обрезает пробелы и проверяет ключ и хеш запроса.
func NormalizeIdempotencyInput(key, requestHash string) (string, string, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return "", "", ErrIdempotencyKeyRequired
	case len(key) > MaxIdempotencyKeyLength:
		return "", "", ErrIdempotencyKeyTooLong
	case requestHash == "":
		return "", "", ErrIdempotencyRequestHashRequired
	}
	return key, requestHash, nil
}

// IsIdempotencyConflict сообщает, что ключ уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

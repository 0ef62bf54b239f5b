package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNormalizeIdempotencyInput(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		hash    string
		wantKey string
		wantErr error
	}{
		{name: "trimmed", key: " 7:abc ", hash: " h ", wantKey: "7:abc"},
		{name: "empty key", key: "", hash: "h", wantErr: ErrIdempotencyKeyRequired},
		{name: "key at limit", key: strings.Repeat("k", MaxIdempotencyKeyLength), hash: "h", wantKey: strings.Repeat("k", MaxIdempotencyKeyLength)},
		{name: "key over limit", key: strings.Repeat("k", MaxIdempotencyKeyLength+1), hash: "h", wantErr: ErrIdempotencyKeyTooLong},
		{name: "empty hash", key: "k", hash: "\t", wantErr: ErrIdempotencyRequestHashRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, hash, err := NormalizeIdempotencyInput(tt.key, tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr != nil {
				return
			}
			if key != tt.wantKey || hash != strings.TrimSpace(tt.hash) {
				t.Fatalf("unexpected normalized input %q %q", key, hash)
			}
		})
	}

	if !errors.Is(ErrIdempotencyKeyTooLong, ErrValidation) {
		t.Fatal("too long key must be a validation error")
	}
}

func TestIdempotencyRecord_State(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		rec        IdempotencyRecord
		expired    bool
		replayable bool
	}{
		{name: "processing", rec: IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(time.Hour)}},
		{name: "done with body", rec: IdempotencyRecord{Status: IdempotencyStatusDone, HTTPStatus: 201, ResponseBody: []byte(`{}`), TTLAt: now.Add(time.Hour)}, replayable: true},
		{name: "failed with body", rec: IdempotencyRecord{Status: IdempotencyStatusFailed, HTTPStatus: 400, ResponseBody: []byte(`{}`), TTLAt: now}, expired: true, replayable: true},
		{name: "done without body", rec: IdempotencyRecord{Status: IdempotencyStatusDone, HTTPStatus: 204, TTLAt: now.Add(-time.Second)}, expired: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Expired(now); got != tt.expired {
				t.Errorf("Expired() = %v, want %v", got, tt.expired)
			}
			if got := tt.rec.Replayable(); got != tt.replayable {
				t.Errorf("Replayable() = %v, want %v", got, tt.replayable)
			}
		})
	}

	for _, s := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		if !s.Valid() {
			t.Errorf("status %q must be valid", s)
		}
	}
	if IdempotencyStatus("expired").Valid() {
		t.Error("unknown status must be invalid")
	}
}

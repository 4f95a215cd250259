package httpserver

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domassessments "github.com/clinovia/labrisk/internal/domain/assessments"
	dompatients "github.com/clinovia/labrisk/internal/domain/patients"
)

func TestReadLimited(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		payload := bytes.Repeat([]byte("a"), 64)
		got, err := readLimited(bytes.NewReader(payload), 64)
		if err != nil {
			t.Fatalf("readLimited: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("read %d bytes, want %d intact", len(got), len(payload))
		}
	})

	t.Run("over limit rejected, not truncated", func(t *testing.T) {
		payload := bytes.Repeat([]byte("a"), 65)
		_, err := readLimited(bytes.NewReader(payload), 64)
		if !errors.Is(err, dompatients.ErrInvalid) {
			t.Fatalf("err = %v, want ErrInvalid", err)
		}
	})
}

func TestPathID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"well-formed", "0b43c1a2-58f1-4b8e-9a71-2f8f9f3f7d10", false},
		{"sql fragment", "1 OR 1=1", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			req := httptest.NewRequest("GET", "/v1/assessments/x", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := pathID(req, domassessments.ErrInvalid)
			if tt.wantErr {
				if !errors.Is(err, domassessments.ErrInvalid) {
					t.Fatalf("err = %v, want ErrInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("pathID: %v", err)
			}
			if got != tt.id {
				t.Errorf("id = %q, want %q", got, tt.id)
			}
		})
	}
}

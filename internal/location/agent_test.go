package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestAgentSourceCurrent(t *testing.T) {
	captured := time.Now().Add(-2 * time.Second).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/position" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("high_accuracy") != "1" {
			t.Error("high accuracy hint not forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"latitude":12.9716,"longitude":77.5946,"accuracy":6.5,"captured_at":` +
			strconv.FormatInt(captured, 10) + `}`))
	}))
	defer srv.Close()

	src := NewAgentSource(srv.URL)
	pos, err := src.Current(context.Background(), true)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if pos.Latitude != 12.9716 || pos.AccuracyM != 6.5 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if pos.CapturedAt.IsZero() {
		t.Fatal("captured timestamp not decoded")
	}
}

func TestAgentSourceStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, ErrPermissionDenied},
		{http.StatusUnauthorized, ErrPermissionDenied},
		{http.StatusNotFound, ErrUnsupported},
		{http.StatusNotImplemented, ErrUnsupported},
		{http.StatusServiceUnavailable, ErrPositionUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		src := NewAgentSource(srv.URL)
		_, err := src.Current(context.Background(), false)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

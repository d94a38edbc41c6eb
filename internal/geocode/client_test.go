package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReverseSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("format") != "jsonv2" || q.Get("zoom") != "18" || q.Get("addressdetails") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"display_name": "MG Road, Bengaluru, Karnataka, India",
			"address": {
				"road": "MG Road",
				"city": "Bengaluru",
				"state": "Karnataka",
				"country": "India"
			}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, false)
	addr := c.Reverse(context.Background(), 12.9716, 77.5946)

	if addr.City != "Bengaluru" || addr.Country != "India" || addr.Road != "MG Road" {
		t.Fatalf("unexpected address %+v", addr)
	}
	if addr.DisplayName != "MG Road, Bengaluru, Karnataka, India" {
		t.Fatalf("display name = %q", addr.DisplayName)
	}
}

func TestReverseFallsBackToTownAndRegion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"display_name": "Somewhere rural",
			"address": {"town": "Hosur", "region": "Tamil Nadu", "country": "India"}
		}`))
	}))
	defer srv.Close()

	addr := New(srv.URL, time.Second, false).Reverse(context.Background(), 12.7, 77.8)
	if addr.City != "Hosur" || addr.State != "Tamil Nadu" {
		t.Fatalf("fallback fields not used: %+v", addr)
	}
	if addr.Road != "Unknown" {
		t.Fatalf("missing road should default to Unknown, got %q", addr.Road)
	}
}

func TestReverseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	addr := New(srv.URL, time.Second, false).Reverse(context.Background(), 12.97, 77.59)
	if addr != FailedAddress() {
		t.Fatalf("server error must yield the sentinel, got %+v", addr)
	}
}

func TestReverseMissingAddressField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"display_name": "middle of the ocean"}`))
	}))
	defer srv.Close()

	addr := New(srv.URL, time.Second, false).Reverse(context.Background(), 0, 0)
	if addr != FailedAddress() {
		t.Fatalf("missing address must yield the sentinel, got %+v", addr)
	}
}

func TestReverseTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	addr := New(srv.URL, 20*time.Millisecond, false).Reverse(context.Background(), 12.97, 77.59)
	if addr != FailedAddress() {
		t.Fatalf("timeout must yield the sentinel, got %+v", addr)
	}
}

func TestReverseUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // dead endpoint

	addr := New(srv.URL, time.Second, false).Reverse(context.Background(), 12.97, 77.59)
	if addr != FailedAddress() {
		t.Fatalf("unreachable service must yield the sentinel, got %+v", addr)
	}
}

func TestReverseSkipMode(t *testing.T) {
	addr := New("http://unused", time.Second, true).Reverse(context.Background(), 12.97, 77.59)
	if addr.IsZero() || addr == FailedAddress() {
		t.Fatalf("skip mode should return a canned address, got %+v", addr)
	}
}

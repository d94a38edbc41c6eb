package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"campusattend/internal/metrics"
)

// Address is the normalized result of a reverse lookup. All fields are
// best effort; a failed lookup yields the sentinel from FailedAddress.
type Address struct {
	Country     string `json:"country,omitempty"`
	State       string `json:"state,omitempty"`
	City        string `json:"city,omitempty"`
	Road        string `json:"road,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// IsZero reports whether no lookup result is attached at all.
func (a Address) IsZero() bool {
	return a == Address{}
}

// FailedAddress is returned when the lookup could not be completed.
// Marking flows persist it as-is rather than failing.
func FailedAddress() Address {
	return Address{
		Country:     "Unknown",
		State:       "Unknown",
		City:        "Unknown",
		Road:        "Unknown",
		DisplayName: "Address lookup failed",
	}
}

// Client calls a Nominatim-compatible reverse geocoding service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout. Skip short-circuits to a
// canned address for dev environments without network access.
func New(baseURL string, timeout time.Duration, skip bool) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Reverse translates coordinates into an Address. It never returns an
// error: any failure is absorbed and reported as the sentinel address.
// Enrichment must not be able to fail the attendance flow.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) Address {
	if c.Skip {
		return Address{
			Country:     "India",
			State:       "Karnataka",
			City:        "Bengaluru",
			Road:        "Sample Road",
			DisplayName: "Sample Road, Bengaluru, Karnataka, India",
		}
	}

	addr, err := c.lookup(ctx, lat, lon)
	if err != nil {
		log.Printf("geocode: reverse lookup failed: %v", err)
		metrics.GeocodeLookups.WithLabelValues("error").Inc()
		return FailedAddress()
	}
	metrics.GeocodeLookups.WithLabelValues("ok").Inc()
	return addr
}

func (c *Client) lookup(ctx context.Context, lat, lon float64) (Address, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return Address{}, err
	}
	// Nominatim's usage policy requires an identifying agent.
	req.Header.Set("User-Agent", "campusattend/1.0")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Address{}, fmt.Errorf("geocode service error %s", resp.Status)
	}

	var out struct {
		DisplayName string `json:"display_name"`
		Address     *struct {
			Country string `json:"country"`
			State   string `json:"state"`
			Region  string `json:"region"`
			City    string `json:"city"`
			Town    string `json:"town"`
			Village string `json:"village"`
			Road    string `json:"road"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Address{}, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if out.Address == nil {
		return Address{}, fmt.Errorf("geocode response missing address")
	}

	addr := Address{
		Country:     firstNonEmpty(out.Address.Country, "Unknown"),
		State:       firstNonEmpty(out.Address.State, out.Address.Region, "Unknown"),
		City:        firstNonEmpty(out.Address.City, out.Address.Town, out.Address.Village, "Unknown"),
		Road:        firstNonEmpty(out.Address.Road, "Unknown"),
		DisplayName: firstNonEmpty(out.DisplayName, "Unknown location"),
	}
	return addr, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

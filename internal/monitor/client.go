package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/estately/presence-relay/internal/domain/model"
)

var ErrUnexpectedStatus = errors.New("monitor: unexpected status")

// Client polls a running relay's HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimSuffix(addr, "/"),
		http:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Stats(ctx context.Context) (model.HubStats, error) {
	var st model.HubStats
	err := c.get(ctx, "/v1/stats", &st)
	return st, err
}

func (c *Client) Presence(ctx context.Context) ([]string, error) {
	var p model.OnlineUsersPayload
	err := c.get(ctx, "/v1/presence", &p)
	return p.OnlineUsers, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Sample is one poll result.
type Sample struct {
	At     time.Time
	Stats  model.HubStats
	Online []string
	Err    error
}

// History keeps the last N samples for the sparklines.
type History struct {
	size    int
	samples []Sample
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{size: size}
}

func (h *History) Add(s Sample) {
	h.samples = append(h.samples, s)
	if len(h.samples) > h.size {
		h.samples = h.samples[len(h.samples)-h.size:]
	}
}

func (h *History) Last() (Sample, bool) {
	if len(h.samples) == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// OnlineSeries returns the online user count of every successful sample.
func (h *History) OnlineSeries() []float64 {
	out := make([]float64, 0, len(h.samples))
	for _, s := range h.samples {
		if s.Err == nil {
			out = append(out, float64(s.Stats.OnlineUsers))
		}
	}
	return out
}

// RelayRate returns messages relayed per poll between consecutive samples.
func (h *History) RelayRate() []float64 {
	var out []float64
	var prev *Sample
	for i := range h.samples {
		s := &h.samples[i]
		if s.Err != nil {
			continue
		}
		if prev != nil && s.Stats.Relayed >= prev.Stats.Relayed {
			out = append(out, float64(s.Stats.Relayed-prev.Stats.Relayed))
		}
		prev = s
	}
	return out
}

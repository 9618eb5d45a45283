package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/roomshare/browserd/internal/api"
	"github.com/roomshare/browserd/internal/queue"
	"github.com/roomshare/browserd/internal/session"
)

// daemonClient is a thin HTTP client for the read-side endpoints used
// by the inspection commands.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

func newDaemonClient(baseURL string) *daemonClient {
	return &daemonClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *daemonClient) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("browserd unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *daemonClient) Status() (api.StatusResponse, error) {
	var st api.StatusResponse
	err := c.getJSON("/v1/status", &st)
	return st, err
}

func (c *daemonClient) Sessions() ([]session.Session, error) {
	var out []session.Session
	err := c.getJSON("/v1/sessions", &out)
	return out, err
}

func (c *daemonClient) Queue() ([]queue.Entry, error) {
	var out []queue.Entry
	err := c.getJSON("/v1/queue", &out)
	return out, err
}

package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roomshare/browserd/internal/api"
	"github.com/roomshare/browserd/internal/pool"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "status": false, "sessions": false, "queue": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestDaemonClientStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(api.StatusResponse{
			Pool:     pool.Stats{Total: 3, Available: 2, Allocated: 1},
			Sessions: 1,
		})
	}))
	defer ts.Close()

	st, err := newDaemonClient(ts.URL).Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Pool.Total != 3 || st.Sessions != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestDaemonClientUnreachable(t *testing.T) {
	_, err := newDaemonClient("http://127.0.0.1:1").Status()
	if err == nil {
		t.Error("expected an error for an unreachable daemon")
	}
}

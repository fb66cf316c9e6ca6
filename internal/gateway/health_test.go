package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adab-ai/adab-go/internal/chat"
)

// fakePinger reports a fixed probe result under a fixed name.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }
func (f *fakePinger) Name() string               { return f.name }

func newReadyServer(t *testing.T, pingers ...Pinger) *Server {
	t.Helper()
	s, err := New(
		&fakeResponder{resp: &chat.Response{Text: "ok"}},
		&fakeVerifier{key: testKey, cred: testCredential()},
		&Config{Pingers: pingers, RateLimit: 1000, RateBurst: 1000},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

func getReady(t *testing.T, s *Server) (*httptest.ResponseRecorder, readyResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	var resp readyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ready response: %v", err)
	}
	return rec, resp
}

func TestReadyAllHealthy(t *testing.T) {
	s := newReadyServer(t,
		&fakePinger{name: "qdrant"},
		&fakePinger{name: "keystore"},
	)

	rec, resp := getReady(t, s)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Errorf("response = %+v", resp)
	}
	for _, c := range resp.Checks {
		if !c.OK || c.Error != "" {
			t.Errorf("check %q = %+v", c.Name, c)
		}
	}
}

func TestReadyDependencyDown(t *testing.T) {
	s := newReadyServer(t,
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
		&fakePinger{name: "keystore"},
	)

	rec, resp := getReady(t, s)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Ready {
		t.Error("ready = true with a failing dependency")
	}
	if resp.Checks[0].OK || resp.Checks[0].Error == "" {
		t.Errorf("qdrant check = %+v", resp.Checks[0])
	}
	if !resp.Checks[1].OK {
		t.Errorf("keystore check = %+v", resp.Checks[1])
	}
}

func TestReadyNoPingers(t *testing.T) {
	s := newReadyServer(t)

	rec, resp := getReady(t, s)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !resp.Ready {
		t.Error("ready = false with no configured probes")
	}
}

func TestMultiPinger(t *testing.T) {
	ok := NewMultiPinger(&fakePinger{name: "a"}, &fakePinger{name: "b"})
	if err := ok.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}

	bad := NewMultiPinger(
		&fakePinger{name: "a"},
		&fakePinger{name: "b", err: errors.New("down")},
	)
	err := bad.Ping(context.Background())
	if err == nil {
		t.Fatal("Ping() = nil with a failing probe")
	}
	if got := err.Error(); got != "b: down" {
		t.Errorf("error = %q", got)
	}
}

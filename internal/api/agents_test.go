package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/overcode/overcode/internal/types"
)

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("Post %s: %v", url, err)
	}
	return resp
}

func putJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req, err := http.NewRequest(http.MethodPut, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Put %s: %v", url, err)
	}
	return resp
}

func launchSession(t *testing.T, srv *httptest.Server) *types.AgentSession {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/agents/launch", map[string]interface{}{
		"directory":   t.TempDir(),
		"name":        "worker-one",
		"permissions": "normal",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("launch: expected 200, got %d", resp.StatusCode)
	}
	var env struct {
		OK   bool               `json:"ok"`
		Data types.AgentSession `json:"data"`
	}
	if err := decodeResponseJSON(resp, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.OK {
		t.Fatalf("launch envelope not ok: %+v", env)
	}
	return &env.Data
}

func TestHandleLaunch_CreatesSessionAndSendsPrompt(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/agents/launch", map[string]interface{}{
		"directory":   t.TempDir(),
		"name":        "worker-two",
		"permissions": "permissive",
		"prompt":      "say hello",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleLaunch_RequiresDirectoryAndName(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/agents/launch", map[string]interface{}{"name": "missing-dir"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleSend_DeliversTextToSession(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	sess := launchSession(t, srv)
	resp := postJSON(t, srv.URL+"/api/agents/"+sess.ID+"/send", map[string]interface{}{"text": "hi", "enter": true})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleSend_UnknownSessionReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/agents/does-not-exist/send", map[string]interface{}{"text": "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleKeys_RejectsUnknownKeyName(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	sess := launchSession(t, srv)
	resp := postJSON(t, srv.URL+"/api/agents/"+sess.ID+"/keys", map[string]interface{}{"key": "banana"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleKeys_AcceptsNamedKey(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	sess := launchSession(t, srv)
	resp := postJSON(t, srv.URL+"/api/agents/"+sess.ID+"/keys", map[string]interface{}{"key": "ctrl-c"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleBudgetValueAnnotationSleep_RoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	sess := launchSession(t, srv)
	base := srv.URL + "/api/agents/" + sess.ID

	cases := []struct {
		path string
		body map[string]interface{}
	}{
		{"/budget", map[string]interface{}{"usd": 12.5}},
		{"/value", map[string]interface{}{"value": 3}},
		{"/annotation", map[string]interface{}{"text": "needs review"}},
		{"/time-context", map[string]interface{}{"enabled": true}},
		{"/hook-detection", map[string]interface{}{"enabled": false}},
		{"/heartbeat", map[string]interface{}{"enabled": true, "frequency": 600, "instruction": "status check"}},
	}
	for _, c := range cases {
		resp := putJSON(t, base+c.path, c.body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("PUT %s: expected 200, got %d", c.path, resp.StatusCode)
		}
	}

	resp := postJSON(t, base+"/sleep", map[string]interface{}{"asleep": true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sleep: expected 200, got %d", resp.StatusCode)
	}

	for _, path := range []string{"/heartbeat/pause", "/heartbeat/resume"} {
		resp := postJSON(t, base+path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("POST %s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestHandleStandingOrders_SetAndClear(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	sess := launchSession(t, srv)
	url := srv.URL + "/api/agents/" + sess.ID + "/standing-orders"

	resp := putJSON(t, url, map[string]interface{}{"text": "focus on the auth module"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT: expected 200, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, url, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE: expected 200, got %d", delResp.StatusCode)
	}
}

func TestHandleKill(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	sess := launchSession(t, srv)

	killResp := postJSON(t, srv.URL+"/api/agents/"+sess.ID+"/kill", map[string]interface{}{"cascade": false})
	defer killResp.Body.Close()
	if killResp.StatusCode != http.StatusOK {
		t.Fatalf("kill: expected 200, got %d", killResp.StatusCode)
	}
}

func TestHandleTransport_RequiresTargetGroup(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/agents/transport", map[string]interface{}{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleTransport_MovesLocalSessions(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	launchSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/agents/transport", map[string]interface{}{"target_group": "overcode-relocated"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var env struct {
		Data struct {
			Moved int `json:"moved"`
		} `json:"data"`
	}
	if err := decodeResponseJSON(resp, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Moved != 1 {
		t.Fatalf("expected 1 session moved, got %d", env.Data.Moved)
	}
}

func TestHandleCleanup_RemovesTerminatedSessions(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	sess := launchSession(t, srv)

	killResp := postJSON(t, srv.URL+"/api/agents/"+sess.ID+"/kill", map[string]interface{}{"cascade": false})
	killResp.Body.Close()

	resp := postJSON(t, srv.URL+"/api/agents/cleanup", map[string]interface{}{"include_done": true})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

package manage

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/protocol"
	"github.com/scriptbridge/sb-broker/internal/registration"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	manifestDir := t.TempDir()
	dir := hostdir.NewMemoryDirectory(map[string]protocol.HostEntry{
		"com.test.echo": {ScriptPath: "/opt/echo.sh", AllowedOrigins: []string{"chrome-extension://abc/"}},
		"com.test.other": {ScriptPath: "/opt/other.sh"},
	})
	backend := registration.NewManifestBackend(manifestDir, "/usr/bin/sb-broker", logger)
	return NewServer(backend, dir, logger), manifestDir
}

func TestHandle_InstallFromDirectory(t *testing.T) {
	s, manifestDir := newTestServer(t)

	res := s.Handle([]byte(`{"type":"install","requestId":"r1","hostName":"com.test.echo"}`))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "result", res.Type)
	assert.Equal(t, "r1", res.RequestID)
	assert.Equal(t, filepath.Join(manifestDir, "com.test.echo.json"), res.Path)
	require.NotNil(t, res.Installed)
	assert.True(t, *res.Installed)

	res = s.Handle([]byte(`{"type":"status","requestId":"r2","hostName":"com.test.echo"}`))
	require.True(t, res.Success)
	assert.True(t, *res.Installed)
}

func TestHandle_InstallInlineHost(t *testing.T) {
	s, manifestDir := newTestServer(t)

	res := s.Handle([]byte(`{"type":"install","host":{"hostName":"com.test.inline","scriptPath":"/opt/inline.sh","allowedOrigins":["chrome-extension://x/"]}}`))
	require.True(t, res.Success, res.Message)
	assert.NotEmpty(t, res.RequestID)

	_, err := os.Stat(filepath.Join(manifestDir, "com.test.inline.json"))
	assert.NoError(t, err)
}

func TestHandle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		request string
		want    string
	}{
		{name: "bad json", request: `{`, want: "invalid request"},
		{name: "unknown type", request: `{"type":"reboot"}`, want: "unknown request type"},
		{name: "unknown host", request: `{"type":"install","hostName":"com.nope"}`, want: "No host registered with name: com.nope"},
		{name: "missing name", request: `{"type":"install"}`, want: "install requires host or hostName"},
		{name: "invalid name", request: `{"type":"uninstall","hostName":"../x"}`, want: "invalid host name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			res := s.Handle([]byte(tt.request))
			assert.False(t, res.Success)
			assert.Contains(t, res.Message, tt.want)
			assert.Equal(t, "result", res.Type)
		})
	}
}

func TestHandle_UninstallNeverInstalled(t *testing.T) {
	s, _ := newTestServer(t)

	res := s.Handle([]byte(`{"type":"uninstall","hostName":"com.test.echo"}`))
	assert.True(t, res.Success, res.Message)
	assert.False(t, *res.Installed)
}

func TestHandle_List(t *testing.T) {
	s, _ := newTestServer(t)
	require.True(t, s.Handle([]byte(`{"type":"install","hostName":"com.test.other"}`)).Success)

	res := s.Handle([]byte(`{"type":"list"}`))
	require.True(t, res.Success)
	assert.Equal(t, []protocol.HostStatus{
		{HostName: "com.test.echo", Installed: false},
		{HostName: "com.test.other", Installed: true},
	}, res.Hosts)
}

func TestServeHTTP_RoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	requests := []protocol.ManageRequest{
		{Type: "install", RequestID: "a", HostName: "com.test.echo"},
		{Type: "status", RequestID: "b", HostName: "com.test.echo"},
		{Type: "uninstall", RequestID: "c", HostName: "com.test.echo"},
		{Type: "status", RequestID: "d", HostName: "com.test.echo"},
	}
	want := []bool{true, true, false, false}

	for i, req := range requests {
		require.NoError(t, conn.WriteJSON(req))
		var res protocol.ManageResult
		require.NoError(t, conn.ReadJSON(&res))
		assert.Equal(t, req.RequestID, res.RequestID)
		require.True(t, res.Success, res.Message)
		require.NotNil(t, res.Installed)
		assert.Equal(t, want[i], *res.Installed, req.RequestID)
	}
}

func TestServeHTTP_RejectsForeignOrigin(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoopbackOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://[::1]:8080", true},
		{"https://example.com", false},
		{"chrome-extension://abc", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, loopbackOrigin(r), tt.origin)
	}
}

func TestHandle_OnlyHostsFileScriptsMadeExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission check on Windows")
	}
	logger := zaptest.NewLogger(t)
	scripts := t.TempDir()
	listed := filepath.Join(scripts, "listed.sh")
	inline := filepath.Join(scripts, "inline.sh")
	for _, p := range []string{listed, inline} {
		require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\ncat\n"), 0o644))
	}
	dir := hostdir.NewMemoryDirectory(map[string]protocol.HostEntry{"com.test.listed": {ScriptPath: listed}})
	s := NewServer(registration.NewManifestBackend(t.TempDir(), "/usr/bin/sb-broker", logger), dir, logger)

	res := s.Handle([]byte(`{"type":"install","hostName":"com.test.listed"}`))
	require.True(t, res.Success, res.Message)
	res = s.Handle([]byte(`{"type":"install","host":{"hostName":"com.test.inline","scriptPath":"` + inline + `"}}`))
	require.True(t, res.Success, res.Message)

	info, err := os.Stat(listed)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	info, err = os.Stat(inline)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

package broker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scriptbridge/sb-broker/internal/frame"
	"github.com/scriptbridge/sb-broker/internal/hostdir"
	"github.com/scriptbridge/sb-broker/internal/protocol"
	"github.com/scriptbridge/sb-broker/internal/supervisor"
)

type fakeRunner struct {
	calls   atomic.Int32
	outcome supervisor.Outcome
}

func (f *fakeRunner) Run(_ context.Context, _ hostdir.Definition, payload json.RawMessage) supervisor.Outcome {
	f.calls.Add(1)
	if f.outcome.Kind == supervisor.Success && f.outcome.Value == nil {
		return supervisor.Outcome{Kind: supervisor.Success, Value: payload}
	}
	return f.outcome
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func encodeFrames(t *testing.T, msgs ...any) []byte {
	t.Helper()
	var out []byte
	for _, m := range msgs {
		data, err := frame.Encode(m)
		require.NoError(t, err)
		out = append(out, data...)
	}
	return out
}

func serve(t *testing.T, dir hostdir.Directory, runner Runner, input []byte) []string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	out := &syncBuffer{}
	b := New(dir, runner, frame.NewWriter(out, logger), frame.DefaultMaxPayload, logger)
	require.NoError(t, b.Serve(context.Background(), bytes.NewReader(input)))

	var replies []string
	d := frame.NewDemuxer(0, func(msg json.RawMessage, bad *frame.PayloadError) {
		require.Nil(t, bad)
		replies = append(replies, string(msg))
	}, logger)
	d.Feed(out.buf.Bytes())
	require.Zero(t, d.Buffered())
	return replies
}

func TestServe_UnknownHost(t *testing.T) {
	runner := &fakeRunner{}
	replies := serve(t, hostdir.NewMemoryDirectory(nil), runner,
		encodeFrames(t, map[string]any{"hostName": "com.unknown.host", "payload": map[string]any{}}))

	require.Len(t, replies, 1)
	assert.JSONEq(t, `{"error":"No host registered with name: com.unknown.host"}`, replies[0])
	assert.Zero(t, runner.calls.Load())
}

func TestServe_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		msg  any
	}{
		{name: "missing hostName", msg: map[string]any{"payload": map[string]any{}}},
		{name: "missing payload", msg: map[string]any{"hostName": "com.test.echo"}},
		{name: "null payload", msg: map[string]any{"hostName": "com.test.echo", "payload": nil}},
		{name: "non-string hostName", msg: map[string]any{"hostName": 5, "payload": 1}},
		{name: "not an object", msg: []any{"com.test.echo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			dir := hostdir.NewMemoryDirectory(map[string]protocol.HostEntry{"com.test.echo": {ScriptPath: "/x"}})
			replies := serve(t, dir, runner, encodeFrames(t, tt.msg))

			require.Len(t, replies, 1)
			assert.JSONEq(t, `{"error":"Invalid message format. 'hostName' and 'payload' are required."}`, replies[0])
			assert.Zero(t, runner.calls.Load())
		})
	}
}

func TestServe_InvalidJSONFrameGetsErrorReply(t *testing.T) {
	bad := []byte("{nope")
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(bad)))

	input := append(header, bad...)
	input = append(input, encodeFrames(t, map[string]any{"hostName": "com.test.echo", "payload": 1})...)

	dir := hostdir.NewMemoryDirectory(map[string]protocol.HostEntry{"com.test.echo": {ScriptPath: "/x"}})
	replies := serve(t, dir, &fakeRunner{}, input)

	require.Len(t, replies, 2)
	sort.Strings(replies)
	assert.JSONEq(t, `1`, replies[0])
	assert.Contains(t, replies[1], "Invalid JSON message")
}

func TestServe_OneReplyPerRequest(t *testing.T) {
	dir := hostdir.NewMemoryDirectory(map[string]protocol.HostEntry{"com.test.echo": {ScriptPath: "/x"}})
	runner := &fakeRunner{}

	var msgs []any
	for i := 0; i < 25; i++ {
		msgs = append(msgs, map[string]any{"hostName": "com.test.echo", "payload": map[string]any{"n": i}})
	}
	replies := serve(t, dir, runner, encodeFrames(t, msgs...))

	assert.Len(t, replies, 25)
	assert.EqualValues(t, 25, runner.calls.Load())
}

func TestServe_ConfigUnavailable(t *testing.T) {
	dir := hostdir.NewFileDirectory(filepath.Join(t.TempDir(), "missing.json"))
	replies := serve(t, dir, &fakeRunner{},
		encodeFrames(t, map[string]any{"hostName": "com.test.echo", "payload": 1}))

	require.Len(t, replies, 1)
	var reply protocol.ErrorReply
	require.NoError(t, json.Unmarshal([]byte(replies[0]), &reply))
	assert.Contains(t, reply.Error, "Host configuration unavailable:")
}

func TestServe_RealScripts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping shell script test on Windows")
	}
	tmp := t.TempDir()
	echo := filepath.Join(tmp, "echo.sh")
	require.NoError(t, os.WriteFile(echo, []byte("#!/bin/sh\ncat\n"), 0o755))
	fail := filepath.Join(tmp, "fail.sh")
	require.NoError(t, os.WriteFile(fail, []byte("#!/bin/sh\necho boom >&2\nexit 2\n"), 0o755))

	hosts := filepath.Join(tmp, "hosts.json")
	require.NoError(t, os.WriteFile(hosts, []byte(`{
		"com.test.echo": {"scriptPath": "`+echo+`"},
		"com.test.fail": {"scriptPath": "`+fail+`"}
	}`), 0o644))

	runner := supervisor.New(supervisor.Options{Timeout: 10 * time.Second}, zaptest.NewLogger(t))
	replies := serve(t, hostdir.NewFileDirectory(hosts), runner, encodeFrames(t,
		map[string]any{"hostName": "com.test.echo", "payload": map[string]any{"action": "ping"}},
		map[string]any{"hostName": "com.test.fail", "payload": map[string]any{}},
	))

	require.Len(t, replies, 2)
	sort.Strings(replies)
	assert.JSONEq(t, `{"action":"ping"}`, replies[0])
	assert.JSONEq(t, `{"error":"Script execution failed: boom"}`, replies[1])
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestServe_ReadError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	b := New(hostdir.NewMemoryDirectory(nil), &fakeRunner{}, frame.NewWriter(&syncBuffer{}, logger), 0, logger)
	err := b.Serve(context.Background(), errReader{})
	assert.ErrorContains(t, err, "broken pipe")
}

func TestWait_StopsDispatch(t *testing.T) {
	logger := zaptest.NewLogger(t)
	out := &syncBuffer{}
	runner := &fakeRunner{}
	dir := hostdir.NewMemoryDirectory(map[string]protocol.HostEntry{"com.test.echo": {ScriptPath: "/x"}})
	b := New(dir, runner, frame.NewWriter(out, logger), 0, logger)

	b.Wait()
	require.NoError(t, b.Serve(context.Background(), bytes.NewReader(
		encodeFrames(t, map[string]any{"hostName": "com.test.echo", "payload": 1}))))

	assert.Zero(t, runner.calls.Load())
	assert.Zero(t, out.buf.Len())
}

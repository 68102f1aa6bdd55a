// ABOUTME: Tests for the distribution service and script directory listing.
// ABOUTME: Uses mock connections to capture envelopes and temp dirs for scripts.

package distribute

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acx-labs/fleetgate/internal/agent"
)

// mockConn records written envelopes and simulates a closeable connection.
type mockConn struct {
	mu     sync.Mutex
	closed bool
	writes []any
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, v)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) written() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.writes...)
}

func newTestService(t *testing.T) (*Service, *agent.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	registry := agent.NewRegistry(slog.Default())
	return NewService(registry, dir, slog.Default()), registry, dir
}

func writeScript(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestSendText(t *testing.T) {
	svc, registry, _ := newTestService(t)
	conn := &mockConn{}
	registry.Register("c1", "host1", "10.0.0.1", conn)

	require.NoError(t, svc.SendText("c1", "hello"))

	writes := conn.written()
	require.Len(t, writes, 1)
	env, ok := writes[0].(textEnvelope)
	require.True(t, ok)
	assert.Equal(t, "message", env.Action)
	assert.Equal(t, "hello", env.Content)
}

func TestSendTextNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.SendText("ghost", "hello")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestSendTextDisconnectedEvicts(t *testing.T) {
	svc, registry, _ := newTestService(t)
	conn := &mockConn{}
	registry.Register("c1", "host1", "10.0.0.1", conn)
	conn.Close()

	err := svc.SendText("c1", "hello")
	assert.ErrorIs(t, err, ErrAgentDisconnected)

	_, ok := registry.Lookup("c1")
	assert.False(t, ok, "stale entry must be evicted")
}

func TestBroadcast(t *testing.T) {
	svc, registry, _ := newTestService(t)
	live1, live2, stale := &mockConn{}, &mockConn{}, &mockConn{}
	registry.Register("c1", "h1", "10.0.0.1", live1)
	registry.Register("c2", "h2", "10.0.0.2", live2)
	registry.Register("c3", "h3", "10.0.0.3", stale)
	stale.Close()

	statuses := svc.Broadcast("hi all")
	require.Len(t, statuses, 3)

	byID := make(map[string]TargetStatus)
	for _, st := range statuses {
		byID[st.ClientID] = st
	}
	assert.NoError(t, byID["c1"].Err)
	assert.NoError(t, byID["c2"].Err)
	assert.ErrorIs(t, byID["c3"].Err, ErrAgentDisconnected)

	assert.Len(t, live1.written(), 1)
	assert.Len(t, live2.written(), 1)
	assert.Empty(t, stale.written())

	_, ok := registry.Lookup("c3")
	assert.False(t, ok, "stale target must be evicted during broadcast")
}

func TestSendScriptChunked(t *testing.T) {
	svc, registry, dir := newTestService(t)
	conn := &mockConn{}
	registry.Register("c1", "h1", "10.0.0.1", conn)

	// Large enough that the encoded form spans three chunks.
	content := []byte(strings.Repeat("Get-Process\n", 800))
	writeScript(t, dir, "inventory.ps1", content)

	require.NoError(t, svc.SendScript("c1", "inventory.ps1", "powershell"))

	writes := conn.written()
	encoded := EncodeScript(content)
	wantChunks := (len(encoded) + ChunkSize - 1) / ChunkSize
	require.Len(t, writes, wantChunks)
	require.Greater(t, wantChunks, 1, "test payload must need chunking")

	var reassembled strings.Builder
	for i, w := range writes {
		env, ok := w.(chunkEnvelope)
		require.True(t, ok)
		assert.Equal(t, "upload_script_chunk", env.Action)
		assert.Equal(t, "inventory.ps1", env.ScriptName)
		assert.Equal(t, "powershell", env.ScriptType)
		assert.Equal(t, i, env.ChunkIndex, "chunks must arrive in order")
		assert.Equal(t, wantChunks, env.TotalChunks)
		reassembled.WriteString(env.ScriptChunk)
	}

	decoded, err := DecodeScript(reassembled.String())
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestSendScriptNotFound(t *testing.T) {
	svc, registry, _ := newTestService(t)
	registry.Register("c1", "h1", "10.0.0.1", &mockConn{})

	err := svc.SendScript("c1", "missing.ps1", "powershell")
	assert.ErrorIs(t, err, ErrScriptNotFound)
}

func TestSendScriptPathTraversal(t *testing.T) {
	svc, registry, _ := newTestService(t)
	registry.Register("c1", "h1", "10.0.0.1", &mockConn{})

	err := svc.SendScript("c1", "../../etc/passwd", "text")
	assert.ErrorIs(t, err, ErrScriptNotFound)
}

func TestBroadcastScriptSingleEnvelope(t *testing.T) {
	svc, registry, dir := newTestService(t)
	conn1, conn2 := &mockConn{}, &mockConn{}
	registry.Register("c1", "h1", "10.0.0.1", conn1)
	registry.Register("c2", "h2", "10.0.0.2", conn2)

	content := []byte(strings.Repeat("echo hi\n", 2000))
	writeScript(t, dir, "noisy.sh", content)

	statuses, err := svc.BroadcastScript("noisy.sh", "linuxshell")
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	// Broadcast sends one full-content envelope per target, never chunks.
	for _, conn := range []*mockConn{conn1, conn2} {
		writes := conn.written()
		require.Len(t, writes, 1)
		env, ok := writes[0].(executeEnvelope)
		require.True(t, ok)
		assert.Equal(t, "execute_script", env.Action)
		assert.Equal(t, "noisy.sh", env.ScriptName)
		assert.Equal(t, "linuxshell", env.ScriptType)
		assert.Equal(t, EncodeScript(content), env.ScriptContent)
	}
}

func TestBroadcastScriptNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.BroadcastScript("missing.sh", "linuxshell")
	assert.ErrorIs(t, err, ErrScriptNotFound)
}

func TestListScripts(t *testing.T) {
	_, _, dir := newTestService(t)

	writeScript(t, dir, "top.ps1", []byte("x"))
	writeScript(t, dir, "notes.txt", []byte("x"))
	writeScript(t, dir, "tools/fix.py", []byte("x"))
	writeScript(t, dir, "tools/run.sh", []byte("x"))
	writeScript(t, dir, "tools/deep/too-far.sh", []byte("x"))
	writeScript(t, dir, "_obsolete_/old.bat", []byte("x"))
	writeScript(t, dir, "readme.md", []byte("x"))

	scripts, err := ListScripts(dir)
	require.NoError(t, err)

	byName := make(map[string]string)
	for _, s := range scripts {
		byName[s.Name] = s.Type
	}

	assert.Equal(t, map[string]string{
		"top.ps1":      "powershell",
		"notes.txt":    "text",
		"tools/fix.py": "python",
		"tools/run.sh": "linuxshell",
	}, byName)
}

func TestListScriptsMissingDir(t *testing.T) {
	_, err := ListScripts(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

package redis

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedHook answers commands in process so no server is needed.
type scriptedHook struct {
	evalErr error
	names   []string
}

func (h *scriptedHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (h *scriptedHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.names = append(h.names, cmd.Name())
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(true)
		case *redis.Cmd:
			if h.evalErr != nil {
				c.SetErr(h.evalErr)
				return h.evalErr
			}
			c.SetVal(int64(1))
		}
		return nil
	}
}

func (h *scriptedHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newScriptedCache(h *scriptedHook) *Cache {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	client.AddHook(h)
	return NewCacheWithClient(client, "test:")
}

func TestImportLock_ReleaseFailureIsLogged(t *testing.T) {
	hook := &scriptedHook{evalErr: errors.New("connection reset")}
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	lock := NewImportLock(newScriptedCache(hook), 10*time.Minute, log)
	release, ok, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, release)

	release()

	out := buf.String()
	assert.Contains(t, out, "import lock release failed")
	assert.Contains(t, out, "connection reset")
	assert.Contains(t, out, "key=lock:import")
	assert.Contains(t, out, "level=DEBUG")
}

func TestImportLock_CleanReleaseIsQuiet(t *testing.T) {
	hook := &scriptedHook{}
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	lock := NewImportLock(newScriptedCache(hook), time.Minute, log)
	release, ok, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	release()

	assert.Empty(t, buf.String())
	assert.Equal(t, "set", hook.names[0])
	assert.True(t, strings.HasPrefix(hook.names[len(hook.names)-1], "eval"), hook.names)
}

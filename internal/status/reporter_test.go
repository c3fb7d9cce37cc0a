package status_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/robalyx/modcase/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) (*status.Reporter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	reporter := status.NewReporter(client, "bot", zap.NewNop())

	t.Cleanup(func() {
		reporter.Stop()
		client.Close()
		mr.Close()
	})

	return reporter, mr
}

func TestReporterWritesHeartbeat(t *testing.T) {
	t.Parallel()

	reporter, mr := setupTest(t)
	reporter.UpdateTask("recovering")
	reporter.Start(t.Context())

	key := fmt.Sprintf("service:bot:%s", reporter.ServiceID())

	require.Eventually(t, func() bool {
		return mr.Exists(key)
	}, time.Second, 10*time.Millisecond)

	data, err := mr.Get(key)
	require.NoError(t, err)

	var st status.Status

	require.NoError(t, sonic.Unmarshal([]byte(data), &st))
	assert.Equal(t, reporter.ServiceID(), st.ServiceID)
	assert.Equal(t, "bot", st.ServiceType)
	assert.Equal(t, "recovering", st.CurrentTask)
	assert.True(t, st.IsHealthy)
	assert.WithinDuration(t, time.Now(), st.LastSeen, 5*time.Second)

	ttl := mr.TTL(key)
	assert.Equal(t, status.HeartbeatTTL, ttl)
}

func TestReporterStopPreventsFurtherWrites(t *testing.T) {
	t.Parallel()

	reporter, mr := setupTest(t)
	reporter.Start(t.Context())

	key := fmt.Sprintf("service:bot:%s", reporter.ServiceID())

	require.Eventually(t, func() bool {
		return mr.Exists(key)
	}, time.Second, 10*time.Millisecond)

	reporter.Stop()
	mr.Del(key)

	// The ticker interval is long; a stopped reporter must not recreate
	// the key even if Start is called again
	reporter.Start(t.Context())
	time.Sleep(50 * time.Millisecond)

	assert.False(t, mr.Exists(key))
}

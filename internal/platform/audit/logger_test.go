package audit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tasker/internal/pkg/detach"
	"tasker/internal/platform/config"
	"tasker/internal/platform/database"
	"tasker/internal/platform/repositories"
)

type failureCounter struct {
	mu    sync.Mutex
	tasks []string
}

func (f *failureCounter) DetachedTaskFailed(task string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
}

func TestLogger_Log(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{URL: ":memory:"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(context.Background(), db, "up"))

	sup := detach.New(4, time.Second, nil)
	repos := repositories.NewManager()
	logger := NewLogger(db, repos, sup)

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("User-Agent", "tasker-test")

	ctx, cancel := context.WithCancel(WithRequest(context.Background(), req))
	logger.Log(ctx, Event{UserID: "u1", Action: ActionUserLogin, ResourceType: "user", ResourceID: "u1", Metadata: map[string]any{"provider": "local"}})
	cancel()
	sup.Wait()

	logs, err := repos.Audit(db).ListByUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionUserLogin, logs[0].Action)
	assert.Equal(t, "192.0.2.7", logs[0].IPAddress)
	assert.Equal(t, "tasker-test", logs[0].UserAgent)
}

func TestLogger_FailureIsRecordedNotReturned(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{URL: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	failures := &failureCounter{}
	sup := detach.New(4, time.Second, failures)
	logger := NewLogger(db, repositories.NewManager(), sup)

	// no migrations, so the insert fails
	logger.Log(context.Background(), Event{Action: ActionUserLogout, ResourceType: "user"})
	sup.Wait()

	assert.Equal(t, []string{"audit.user.logout"}, failures.tasks)
}

func TestLogger_Nil(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Log(context.Background(), Event{Action: ActionUserLogin}) })
}

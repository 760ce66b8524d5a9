package cache

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"taskd/internal/models"
)

func TestNilClientIsDisabled(t *testing.T) {
	ctx := context.Background()
	var c *Client

	_, ok := c.GetTasks(ctx, "all")
	assert.False(t, ok)
	c.SetTasks(ctx, "all", []models.Task{{ID: 1}})
	c.Invalidate(ctx)
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestListKey(t *testing.T) {
	assert.Equal(t, "tasks:list:priority:high", ListKey(models.ByPriority(models.PriorityHigh).String()))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), Options{URL: "not-a-url://"})
	assert.Error(t, err)
}

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	if exec.Command("docker", "info").Run() != nil {
		t.Skip("Docker not available, skipping Redis integration test")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return "redis://" + endpoint + "/0"
}

func TestClient_Integration(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	c, err := New(ctx, Options{URL: url, PoolSize: 4, TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	created := models.Now()
	tasks := []models.Task{{ID: 1, Title: "cached", Priority: models.PriorityLow, Created: created}}
	c.SetTasks(ctx, "all", tasks)
	c.SetTasks(ctx, "pending", tasks)

	got, ok := c.GetTasks(ctx, "all")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "cached", got[0].Title)
	assert.True(t, created.Equal(got[0].Created))

	c.Invalidate(ctx)
	_, ok = c.GetTasks(ctx, "all")
	assert.False(t, ok)
	_, ok = c.GetTasks(ctx, "pending")
	assert.False(t, ok)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		if val, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, val) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", c.HTTPPort)
	assert.Equal(t, 10, c.DBPoolSize)
	assert.Equal(t, 10*time.Second, c.DBTimeout)
	assert.Equal(t, "tasks", c.DBTable)
	assert.Equal(t, "tasks.json", c.TasksFile)
	assert.Equal(t, 5*time.Second, c.LockTimeout)
	assert.Equal(t, time.Minute, c.CacheTTL)
	assert.Equal(t, "task-events", c.KafkaEventsTopic)
	assert.Equal(t, 3, c.KafkaPartitions)
	assert.Empty(t, c.KafkaBrokers)
	assert.False(t, c.KafkaEnabled())
	assert.False(t, c.CacheEnabled())
	assert.False(t, c.IsDeployment())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/tasks")
	t.Setenv("DB_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PORT", "9000")

	c, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/tasks", c.DatabaseURL)
	assert.Equal(t, 3*time.Second, c.DBTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, "9000", c.HTTPPort)
	assert.True(t, c.IsDeployment())
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TASKS_FILE=data/todo.yaml\nLOCK_TIMEOUT=250ms\nRAILWAY_ENVIRONMENT=production\n"), 0o644))
	t.Setenv("LOCK_TIMEOUT", "1s")

	c, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "data/todo.yaml", c.TasksFile)
	assert.Equal(t, time.Second, c.LockTimeout, "environment wins over .env")
	assert.True(t, c.IsDeployment())
}

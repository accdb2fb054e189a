package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single URL", "postgres://localhost:5432/db", []string{"postgres://localhost:5432/db"}},
		{
			"URLs with whitespace",
			" postgres://host1:5432/db , postgres://host2:5432/db ",
			[]string{"postgres://host1:5432/db", "postgres://host2:5432/db"},
		},
		{
			"URLs with empty entries",
			"postgres://host1:5432/db,,postgres://host2:5432/db,",
			[]string{"postgres://host1:5432/db", "postgres://host2:5432/db"},
		},
		{"only commas and whitespace", " , , , ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestConnectionConfigFrom(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.PostgresReplicaURLs = []string{"postgres://replica/db"}

	cc := ConnectionConfigFrom(cfg)
	assert.Equal(t, cfg.PostgresURL, cc.PrimaryURL)
	assert.Equal(t, []string{"postgres://replica/db"}, cc.ReplicaURLs)
	assert.Equal(t, 20, cc.MaxConns)
	assert.Equal(t, time.Hour, cc.MaxLifetime)
}

func TestNewConnectionManager_UnreachablePrimary(t *testing.T) {
	config := ConnectionConfig{
		PrimaryURL: "postgres://nonexistent.invalid:9999/testdb?connect_timeout=1",
		MaxConns:   10,
		MinConns:   2,
		Timeout:    2 * time.Second,
	}

	cm, err := NewConnectionManager(context.Background(), config, observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{}))
	assert.Error(t, err)
	assert.Nil(t, cm)
	assert.Contains(t, err.Error(), "primary")
}

func TestConnectionManager_Replica(t *testing.T) {
	t.Run("no replicas falls back to primary", func(t *testing.T) {
		primary, _ := newMockDB(t)
		cm := &ConnectionManager{primary: primary}

		assert.Same(t, primary, cm.Replica())
	})

	t.Run("round-robin selection", func(t *testing.T) {
		primary, _ := newMockDB(t)
		r1, _ := newMockDB(t)
		r2, _ := newMockDB(t)
		r3, _ := newMockDB(t)
		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{r1, r2, r3}}

		selections := make(map[*sql.DB]int)
		for i := 0; i < 30; i++ {
			selections[cm.Replica()]++
		}

		assert.Equal(t, 10, selections[r1])
		assert.Equal(t, 10, selections[r2])
		assert.Equal(t, 10, selections[r3])
		assert.Zero(t, selections[primary])
	})

	t.Run("concurrent selection", func(t *testing.T) {
		primary, _ := newMockDB(t)
		r1, _ := newMockDB(t)
		r2, _ := newMockDB(t)
		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{r1, r2}}

		var wg sync.WaitGroup
		var mu sync.Mutex
		selections := make(map[*sql.DB]int)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				db := cm.Replica()
				mu.Lock()
				selections[db]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, selections[r1])
		assert.Equal(t, 50, selections[r2])
	})
}

func TestConnectionManager_Close(t *testing.T) {
	primary, pmock := newMockDB(t)
	replica, rmock := newMockDB(t)
	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}}

	pmock.ExpectClose()
	rmock.ExpectClose().WillReturnError(errors.New("already closed"))

	err := cm.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica-0 close error")
	assert.NoError(t, pmock.ExpectationsWereMet())
}

package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigOptions(t *testing.T) {
	cfg := Config{
		Host:             "ch.internal",
		Port:             9440,
		Database:         "quantlens",
		User:             "reader",
		Compress:         true,
		MaxOpenConns:     8,
		MaxExecutionTime: 90 * time.Second,
	}

	opts := cfg.options()
	assert.Equal(t, []string{"ch.internal:9440"}, opts.Addr)
	assert.Equal(t, "reader", opts.Auth.Username)
	assert.Equal(t, ch.Native, opts.Protocol)
	require.NotNil(t, opts.Compression)
	assert.Equal(t, ch.CompressionLZ4, opts.Compression.Method)
	assert.Equal(t, 90, opts.Settings["max_execution_time"])

	cfg.UseHTTP, cfg.Compress, cfg.MaxExecutionTime = true, false, 0
	opts = cfg.options()
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Nil(t, opts.Compression)
	assert.NotContains(t, opts.Settings, "max_execution_time")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)
}

func TestInitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE DATABASE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))

	c := NewFromDB(db)
	require.NoError(t, c.InitSchema(context.Background(), Schema))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchemaStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE DATABASE").WillReturnError(errors.New("readonly"))

	err = NewFromDB(db).InitSchema(context.Background(), Schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema statement 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

package clickhouse

import (
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Config describes the ClickHouse connection used for daily bars.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"9000"`
	Database string `yaml:"database" default:"quantlens"`
	User     string `yaml:"user" default:"default"`
	Password string `yaml:"password"`
	// UseHTTP switches from the native protocol to HTTP (port 8123).
	UseHTTP          bool          `yaml:"use_http"`
	Compress         bool          `yaml:"compress" default:"true"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

func (c Config) options() *ch.Options {
	opts := &ch.Options{
		Addr: []string{fmt.Sprintf("%s:%d", c.Host, c.Port)},
		Auth: ch.Auth{
			Database: c.Database,
			Username: c.User,
			Password: c.Password,
		},
		Protocol:        ch.Native,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		Settings:        ch.Settings{},
	}
	if c.UseHTTP {
		opts.Protocol = ch.HTTP
	}
	if c.Compress {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}
	if secs := int(c.MaxExecutionTime.Seconds()); secs > 0 {
		opts.Settings["max_execution_time"] = secs
	}
	return opts
}

package clickhouse

// Schema is the idempotent DDL for the analytics database.
var Schema = []string{
	"CREATE DATABASE IF NOT EXISTS quantlens",
	`CREATE TABLE IF NOT EXISTS quantlens.daily_bars (
        day Date,
        symbol LowCardinality(String),
        open Float64,
        high Float64,
        low Float64,
        close Float64,
        volume Float64
    ) ENGINE = ReplacingMergeTree ORDER BY (symbol, day)`,
}

// Package config loads and validates the pipeline's environment-variable
// configuration. Shaped on the teacher's global Keys-struct-plus-Init
// pattern; .env loading follows re_dms's dotenv().ok() call in main.rs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

// Keys holds every configuration value the pipeline needs, populated by
// Init and never mutated afterwards.
var Keys struct {
	// Input
	PgRecvlogicalCmd string
	ReadFromStdin    bool
	TableBlacklist   []string
	TargetSchema     string

	// WAL
	WalDir           string
	RotationInterval time.Duration

	// S3
	S3Bucket      string
	S3Prefix      string
	S3Region      string
	S3CredsArn    string // Redshift COPY "CREDENTIALS" role ARN

	// Warehouse
	WarehouseDSN       string
	WarehouseSkipList  []string
	SchemaRefreshEvery time.Duration

	// Transaction filter
	MaxTransactionAge time.Duration

	// Admin surface
	AdminListenAddr string

	LogLevel string
}

// Init loads .env (if present, ignored if missing — mirrors dotenv().ok())
// then reads every required and optional environment variable into Keys,
// exiting the process on the first missing required value so a
// misconfigured deploy fails at startup rather than mid-stream.
func Init(envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Warnf("config: could not load %s: %v", envFile, err)
		}
	}

	Keys.PgRecvlogicalCmd = optional("PG_RECVLOGICAL_CMD", "pg_recvlogical")
	Keys.ReadFromStdin = optionalBool("READ_FROM_STDIN", false)
	Keys.TableBlacklist = splitCSV(optional("TABLE_BLACKLIST", ""))
	Keys.TargetSchema = optional("TARGET_SCHEMA_NAME", "")

	Keys.WalDir = required("WAL_DIR")
	Keys.RotationInterval = optionalDuration("WAL_ROTATION_INTERVAL", 600*time.Second)

	Keys.S3Bucket = required("S3_BUCKET")
	Keys.S3Prefix = optional("S3_PREFIX", "")
	Keys.S3Region = optional("S3_REGION", "us-east-1")
	Keys.S3CredsArn = required("S3_CREDENTIALS_ARN")

	Keys.WarehouseDSN = required("WAREHOUSE_DSN")
	Keys.WarehouseSkipList = splitCSV(optional("WAREHOUSE_SKIP_TABLES", ""))
	Keys.SchemaRefreshEvery = optionalDuration("SCHEMA_REFRESH_INTERVAL", 5*time.Minute)

	Keys.MaxTransactionAge = optionalDuration("MAX_TRANSACTION_AGE", 0)

	Keys.AdminListenAddr = optional("ADMIN_LISTEN_ADDR", ":8080")
	Keys.LogLevel = optional("LOG_LEVEL", "info")
}

func required(name string) string {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		log.Fatalf("config: required environment variable %s is not set", name)
	}
	return v
}

func optional(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func optionalBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not a valid bool: %v", name, v, err)
	}
	return b
}

func optionalDuration(name string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("config: %s=%q is not a valid duration: %v", name, v, err)
	}
	return d
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

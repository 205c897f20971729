// Package config loads trellis configuration from environment variables.
//
// Every setting has a default; LoadConfig validates the result.
//
// Server:
//
//	TRELLIS_HOST="0.0.0.0"
//	TRELLIS_PORT="8080"
//	TRELLIS_SHUTDOWN_TIMEOUT="30s"
//
// Discovery:
//
//	TRELLIS_DATA_DIR="/var/lib/trellis"
//	TRELLIS_PACKAGES_DIR="$TRELLIS_DATA_DIR/packages"
//	TRELLIS_SIDELOAD_DIR="$TRELLIS_DATA_DIR/extensions"
//	TRELLIS_NAMESPACE="trellis"
//
// Settings store:
//
//	TRELLIS_SETTINGS_BACKEND="sqlite"   # memory, sqlite, postgres, redis
//	TRELLIS_SQLITE_PATH="$TRELLIS_DATA_DIR/settings.db"
//	TRELLIS_POSTGRES_URL="postgres://localhost/trellis?sslmode=disable"
//	TRELLIS_REDIS_URL="redis://localhost:6379"
//	TRELLIS_SETTINGS_CACHE_SIZE="1024"  # 0 disables the LRU
//
// Updates:
//
//	TRELLIS_UPDATES_ENABLED="true"
//	TRELLIS_UPDATE_SCHEDULE="@every 6h"
//	TRELLIS_UPDATE_MIN_INTERVAL="1h"
//	TRELLIS_UPDATE_ABI="linux-amd64"
//
// Observability:
//
//	TRELLIS_LOG_LEVEL="info"
//	TRELLIS_METRICS_ENABLED="true"
//	TRELLIS_OTEL_ENABLED="false"
//	TRELLIS_OTEL_ENDPOINT="localhost:4317"
package config

package constants

type ContextKey string

const (
	TxKey       ContextKey = "tx"
	PoolKey     ContextKey = "pool"
	TenantIDKey ContextKey = "tenant_id"
	LoggerKey   ContextKey = "logger"
	ActorKey    ContextKey = "actor"
	RequestKey  ContextKey = "request_id"
)

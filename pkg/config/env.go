package config

// EnvPrefix is passed to envconfig; every field also names its full variable.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	OutboxTransportPubSub = "pubsub"
	OutboxTransportKafka  = "kafka"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvUseSQLite   = "STOREFRONT_USE_SQLITE"
	EnvAutoMigrate = "STOREFRONT_AUTO_MIGRATE"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret              = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer              = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins             = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "STOREFRONT_REFRESH_TOKEN_TTL_MINUTES"

	EnvKafkaBrokers      = "STOREFRONT_KAFKA_BROKERS"
	EnvOTLPHeaders       = "STOREFRONT_OTLP_HEADERS"
	EnvCheckoutAttempts  = "STOREFRONT_CHECKOUT_MAX_ATTEMPTS"
	EnvOutboxTransport   = "STOREFRONT_OUTBOX_TRANSPORT"
	EnvPubSubOrdersTopic = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPaymentsSub = "STOREFRONT_PUBSUB_PAYMENTS_SUBSCRIPTION"
	EnvGoogleClientID    = "STOREFRONT_GOOGLE_CLIENT_ID"
)

var hostDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

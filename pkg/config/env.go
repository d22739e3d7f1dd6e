package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr   = "REDIS_ADDR"
	EnvSlotLockTTL = "SLOT_LOCK_TTL"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvHoldDuration   = "HOLD_DURATION"
	EnvReaperInterval = "REAPER_INTERVAL"
	EnvReaperBatch    = "REAPER_BATCH_SIZE"

	EnvBookingEventsTopic = "BOOKING_EVENTS_TOPIC"
	EnvPaymentEventsTopic = "PAYMENT_EVENTS_TOPIC"
	EnvPaymentDLQTopic    = "PAYMENT_EVENTS_DLQ_TOPIC"
	EnvPaymentGroupID     = "PAYMENT_CONSUMER_GROUP_ID"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

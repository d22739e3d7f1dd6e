package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "mentorbook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr   = "localhost:6379"
	DefaultSlotLockTTL = 10 * time.Second

	DefaultPort = "8080"

	// DefaultHoldDuration is the payment window granted to a pending booking.
	// A product parameter, not a correctness constant: expiry is enforced by
	// the expires_at precondition regardless of its value.
	DefaultHoldDuration   = 5 * time.Minute
	DefaultReaperInterval = 45 * time.Second
	DefaultReaperBatch    = 100

	DefaultBookingEventsTopic = "mentorbook.booking.events"
	DefaultPaymentEventsTopic = "mentorbook.payment.events"
	DefaultPaymentDLQTopic    = "mentorbook.payment.events.dlq"
	DefaultPaymentGroupID     = "mentorbook-reservations"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)

package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ReplacedConnectionPolicy decides what happens to the old connection when an
// identity registers again while still connected.
type ReplacedConnectionPolicy string

const (
	// PolicyClose force-closes the superseded connection. Default, avoids
	// orphaned sockets lingering until their next failed push.
	PolicyClose ReplacedConnectionPolicy = "close"
	// PolicyOrphan leaves the old connection open; it is evicted lazily the
	// next time a push to it fails.
	PolicyOrphan ReplacedConnectionPolicy = "orphan"
)

type Config struct {
	HTTPPort             int           `env:"HTTP_PORT,default=3000"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	KafkaBrokers         string        `env:"KAFKA_BROKERS,default=localhost:9092"`
	KafkaGroupID         string        `env:"KAFKA_GROUP_ID,default=support-hub" validate:"required"`
	RetentionWindow      time.Duration `env:"RETENTION_WINDOW,default=24h" validate:"gt=0"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL,default=10m" validate:"gt=0"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=32" validate:"gt=0"`
	PushTimeout          time.Duration `env:"PUSH_TIMEOUT,default=2s" validate:"gt=0"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	ReplacedPolicy       string        `env:"REPLACED_CONNECTION_POLICY,default=close" validate:"oneof=close orphan"`
	CensorCharacter      string        `env:"CENSOR_CHARACTER,default=*"`
}

// Validate applies the struct-level validation rules after env unmarshalling.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// Brokers splits the comma-separated broker list.
func (c Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func (c Config) Policy() ReplacedConnectionPolicy {
	return ReplacedConnectionPolicy(c.ReplacedPolicy)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSOR_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Brokers checks that at least one broker accepts connections. It
// satisfies health.Pinger.
type Brokers []string

func (b Brokers) Ping(ctx context.Context) error {
	if len(b) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var errs []error
	for _, addr := range b {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return errors.Join(errs...)
}

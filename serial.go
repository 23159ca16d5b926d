package qrefresh

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"
)

/*
OpenSerial opens the device's serial port, 8N1 at the configured baud
rate. Opening is retried with exponential backoff because USB adapters
often appear a moment after the device powers up. The port's own read
timeout is kept short so the Link reader can notice Close promptly; the
per-command deadline is enforced by the Link.
*/
func OpenSerial(ctx context.Context, config *Config, logger *log.Logger) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	policy := &RetryPolicy{
		MaxAttempts: max(1, config.OpenRetries),
		Strategy:    &ExponentialBackoff{Initial: 200 * time.Millisecond},
	}

	var port serial.Port

	err := policy.Do(ctx, func(attempt int) error {
		logger.Info("opening serial port", "port", config.Port, "baud", config.BaudRate, "attempt", attempt+1)

		p, err := serial.Open(config.Port, mode)
		if err != nil {
			return err
		}

		if err := p.SetReadTimeout(min(config.ReadTimeout, 50*time.Millisecond)); err != nil {
			p.Close()
			return fmt.Errorf("setting read timeout: %w", err)
		}

		port = p
		return nil
	})
	if err != nil {
		return nil, &ChannelError{Op: "open", Cause: err}
	}

	return port, nil
}

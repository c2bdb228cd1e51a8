// Package idle reads how long the user has been away from keyboard and mouse.
package idle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tools.zach/dev/statuscord/internal/logger"
)

// ErrUnsupported is returned by [Idle] on platforms without a system-wide
// idle source.
var ErrUnsupported = errors.New("system idle time not supported on this platform")

// Feed samples source every interval and passes each reading to fn until
// ctx is cancelled. An unsupported source ends the feed at once; other read
// errors are logged and the sample skipped.
func Feed(ctx context.Context, interval time.Duration, source func() (time.Duration, error), fn func(time.Duration), log *slog.Logger) error {
	log = logger.Component(log, "idle")
	if source == nil {
		source = Idle
	}
	if _, err := source(); errors.Is(err, ErrUnsupported) {
		log.Info("system idle feed disabled", "error", err)
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d, err := source()
			if err != nil {
				log.Debug("reading system idle time", "error", err)
				continue
			}
			fn(d)
		}
	}
}

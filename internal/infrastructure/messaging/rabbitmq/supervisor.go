package rabbitmq

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/content-platform/internal/metrics"
)

// Run supervises the connection until ctx is cancelled or Close is called.
// When the connection or channel dies it reconnects with exponential
// backoff (BackoffMin doubling up to BackoffMax), re-declaring every binding
// before consumption resumes. A topology conflict stops the loop and is
// returned: it will not fix itself.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.BackoffMin

	for {
		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return nil
		}
		lost, gen, healthy := c.lost, c.gen, c.healthyLocked()
		c.mu.Unlock()

		if healthy {
			select {
			case <-ctx.Done():
				return nil
			case <-c.stop:
				return nil
			case <-lost:
			}

			c.mu.Lock()
			if c.closing {
				c.mu.Unlock()
				return nil
			}
			// A publisher may already have reconnected, or be dialing now.
			if (c.gen != gen && c.healthyLocked()) || c.connecting {
				c.mu.Unlock()
				continue
			}
			c.lg.Warn().Uint64("generation", gen).Msg("rabbitmq connection lost")
			c.dropLocked()
			c.setStateLocked(StateDisconnected)
			c.mu.Unlock()
		}

		for {
			c.mu.Lock()
			if c.closing {
				c.mu.Unlock()
				return nil
			}
			if c.healthyLocked() {
				c.mu.Unlock()
				break
			}
			c.mu.Unlock()

			metrics.RecordReconnect("supervisor")
			err := c.reconnect()
			if err == nil {
				backoff = c.opts.BackoffMin
				break
			}
			if errors.Is(err, ErrClosed) {
				return nil
			}
			if errors.Is(err, errReconnecting) {
				if !sleepOrDoneCtx(ctx, c.stop, c.opts.BackoffMin) {
					return nil
				}
				continue
			}
			if errors.Is(err, ErrTopologyConflict) {
				c.lg.Error().Err(err).Msg("topology conflict, giving up")
				return err
			}

			c.lg.Error().Err(err).Dur("retry_in", backoff).Msg("rabbitmq reconnect failed")
			if !sleepOrDoneCtx(ctx, c.stop, backoff) {
				return nil
			}
			backoff = minDur(backoff*2, c.opts.BackoffMax)
		}
	}
}

func sleepOrDoneCtx(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

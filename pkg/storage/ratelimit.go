package storage

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

const maxReadBurst = 1 << 20

// NewReadLimiter returns a limiter allowing bytesPerSec bytes per second, or nil
// when bytesPerSec is not positive (unlimited).
func NewReadLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := bytesPerSec
	if burst > maxReadBurst {
		burst = maxReadBurst
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(burst))
}

type rateLimitedReader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *rate.Limiter
}

// NewRateLimitedReader wraps reader so that reads consume tokens from limiter.
// Reads are capped at the limiter burst so every WaitN call can be satisfied.
func NewRateLimitedReader(ctx context.Context, reader io.Reader, limiter *rate.Limiter) io.Reader {
	return &rateLimitedReader{ctx: ctx, reader: reader, limiter: limiter}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}
	n, err := r.reader.Read(p)
	if n > 0 {
		if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

package validation

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/libreseed/pkgverify/pkg/storage"
)

// Mode selects what happens after the first corrupted entry.
type Mode int

const (
	// StopOnFirst stops dispatching entry checks after the first failure.
	StopOnFirst Mode = iota

	// CollectAll checks every entry and reports all failures.
	CollectAll
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case StopOnFirst:
		return "stop-first"
	case CollectAll:
		return "collect-all"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "stop-first" or "collect-all".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "stop-first", "":
		return StopOnFirst, nil
	case "collect-all":
		return CollectAll, nil
	}
	return StopOnFirst, fmt.Errorf("unknown validation mode %q, must be 'stop-first' or 'collect-all'", s)
}

type options struct {
	mode    Mode
	workers int
	logger  *zap.Logger
	limiter *rate.Limiter
	strict  bool
}

// Option configures a validation run.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		mode:    StopOnFirst,
		workers: 1,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMode selects stop-on-first or collect-all reporting.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithWorkers sets how many entries are checked concurrently. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithLogger sets the logger used for per-entry and per-package events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReadLimit throttles content hashing to bytesPerSec across all workers.
// Zero or negative disables throttling.
func WithReadLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.limiter = storage.NewReadLimiter(bytesPerSec)
	}
}

// WithStrictRegularFiles makes hardlink entries fail with ErrExpectedRegularFile
// when the object on disk is not a regular file. Off by default, in which case a
// symlink or directory standing in for a file is only caught by the size and
// digest checks.
func WithStrictRegularFiles(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

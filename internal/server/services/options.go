// Package services contains the server-side business logic: magic-link
// issuance, session validation and refresh-token rotation.
package services

import (
	"time"

	"github.com/dmitrijs2005/magiclink/internal/logging"
)

// Recorder receives outcome counts from the services. The metrics package
// provides the Prometheus implementation.
type Recorder interface {
	MagicLinkIssued(purpose string)
	SessionValidated(result string)
	RefreshRotated(result string)
}

// Outcome labels passed to Recorder.
const (
	ResultAuthenticated = "authenticated"
	ResultRejected      = "rejected"
	ResultRotated       = "rotated"
	ResultInvalid       = "invalid"
	ResultError         = "error"
)

type nopRecorder struct{}

func (nopRecorder) MagicLinkIssued(string)  {}
func (nopRecorder) SessionValidated(string) {}
func (nopRecorder) RefreshRotated(string)   {}

type options struct {
	logger   logging.Logger
	recorder Recorder
	now      func() time.Time
}

// Option customises a service.
type Option func(*options)

func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock overrides the time source. It should match the clock given to the token codec.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(module string, opts []Option) options {
	o := options{
		logger:   logging.Discard(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("module", module)
	return o
}

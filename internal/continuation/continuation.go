// internal/continuation/continuation.go

// Package continuation emits the hand-off signal that asks an external
// scheduler to start the next session. Emission is fire-and-forget.
package continuation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/valpere/AdScrapexter/internal/config"
	apperrors "github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
)

// Reason says why a session handed off
type Reason string

const (
	ReasonTimeLimit Reason = "time_limit"
	ReasonBlocked   Reason = "blocked"
	ReasonMoreWork  Reason = "more_work"
)

// Signal is the payload delivered to the successor
type Signal struct {
	SessionID string    `json:"session_id"`
	Reason    Reason    `json:"reason"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Payload renders the signal as JSON
func (s Signal) Payload() ([]byte, error) {
	return json.Marshal(s)
}

// Emitter delivers a signal on one channel
type Emitter interface {
	Emit(ctx context.Context, sig Signal) error
}

// Recorder observes emission outcomes; monitoring implements it
type Recorder interface {
	RecordContinuation(reason, status string)
}

// New builds the emitter selected by cfg
func New(cfg config.ContinuationConfig, logger utils.Logger) (Emitter, error) {
	switch cfg.Backend {
	case "github":
		return NewGitHubEmitter(cfg.Repository, cfg.Token, cfg.EventType)
	case "webhook":
		return NewWebhookEmitter(cfg.URL, cfg.Timeout), nil
	case "redis":
		return NewRedisEmitter(cfg.RedisAddr, cfg.Channel), nil
	case "log", "":
		return NewLogEmitter(logger), nil
	case "none":
		return NopEmitter{}, nil
	}
	return nil, apperrors.Newf(apperrors.KindConfig, "unknown continuation backend %q", cfg.Backend)
}

// OneShot allows at most one emission per session. Delivery errors are
// logged and swallowed; a second call is a no-op.
type OneShot struct {
	emitter  Emitter
	timeout  time.Duration
	logger   utils.Logger
	recorder Recorder

	once    sync.Once
	emitted bool
	mu      sync.Mutex
	sig     Signal
}

// NewOneShot wraps emitter. A positive timeout bounds the delivery.
func NewOneShot(emitter Emitter, timeout time.Duration, logger utils.Logger) *OneShot {
	return &OneShot{emitter: emitter, timeout: timeout, logger: logger}
}

// WithRecorder reports each outcome to r
func (o *OneShot) WithRecorder(r Recorder) *OneShot {
	o.recorder = r
	return o
}

// Emit sends sig once. It never returns an error and never retries.
func (o *OneShot) Emit(ctx context.Context, sig Signal) error {
	o.once.Do(func() {
		o.mu.Lock()
		o.emitted, o.sig = true, sig
		o.mu.Unlock()

		if o.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.timeout)
			defer cancel()
		}

		status := "ok"
		if err := o.emitter.Emit(ctx, sig); err != nil {
			status = "error"
			o.logger.Errorf("continuation signal %s not delivered: %v", sig.Reason, err)
		} else {
			o.logger.Infof("continuation signal emitted: session=%s reason=%s", sig.SessionID, sig.Reason)
		}
		if o.recorder != nil {
			o.recorder.RecordContinuation(string(sig.Reason), status)
		}
	})
	return nil
}

// Emitted returns the signal sent, if any
func (o *OneShot) Emitted() (Signal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sig, o.emitted
}

// LogEmitter only logs the signal
type LogEmitter struct {
	logger utils.Logger
}

// NewLogEmitter creates a log-only emitter
func NewLogEmitter(logger utils.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(ctx context.Context, sig Signal) error {
	payload, err := sig.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	l.logger.WithField("reason", string(sig.Reason)).Infof("continuation requested: %s", payload)
	return nil
}

// NopEmitter drops every signal
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, sig Signal) error { return nil }

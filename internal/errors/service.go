// internal/errors/service.go - Error recovery for store and session operations
package errors

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Service retries transient operations and turns errors into CLI output
type Service struct {
	retryConfig   RetryConfig
	showTechnical bool
}

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DefaultRetryConfig returns the store retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     2 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      time.Minute,
	}
}

// NewService creates a new error recovery service
func NewService() *Service {
	return &Service{retryConfig: DefaultRetryConfig()}
}

// WithRetryConfig returns a copy using cfg
func (s *Service) WithRetryConfig(cfg RetryConfig) *Service {
	c := *s
	c.retryConfig = cfg
	return &c
}

// WithVerbose enables technical details in CLI output
func (s *Service) WithVerbose(verbose bool) *Service {
	c := *s
	c.showTechnical = verbose
	return &c
}

// ExecuteWithRetry runs operation until it succeeds, fails with a
// non-retryable error, or retries run out.
func (s *Service) ExecuteWithRetry(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	for attempt := 0; attempt <= s.retryConfig.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !s.shouldRetry(err) {
			return err
		}
		if attempt == s.retryConfig.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.calculateDelay(attempt)):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operationName, s.retryConfig.MaxRetries+1, lastErr)
}

// shouldRetry retries transient and store errors, plus unclassified
// errors whose text looks like a transport hiccup
func (s *Service) shouldRetry(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindStore:
		return true
	case KindUnknown:
	default:
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"timeout", "connection refused", "connection reset",
		"500", "502", "503", "504", "temporary", "service unavailable",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}

// calculateDelay computes exponential backoff delay
func (s *Service) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(s.retryConfig.BaseDelay) * math.Pow(s.retryConfig.BackoffFactor, float64(attempt)))
	if s.retryConfig.MaxDelay > 0 && delay > s.retryConfig.MaxDelay {
		delay = s.retryConfig.MaxDelay
	}
	return delay
}

// GetUserFriendlyError converts technical errors to user-friendly messages
func (s *Service) GetUserFriendlyError(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	switch {
	case Is(err, ErrBlocked):
		return "Session Handed Off",
			"The target started rejecting traffic. A continuation signal was emitted.",
			[]string{"The next session resumes from the remaining worklist"}
	case Is(err, ErrSessionBudget):
		return "Session Handed Off",
			"The session reached its time budget. A continuation signal was emitted.",
			nil
	}

	switch KindOf(err) {
	case KindConfig:
		return "Configuration Error",
			"The configuration is invalid or could not be read.",
			[]string{
				"Run the validate command to see every problem",
				"Check YAML indentation (use spaces, not tabs)",
			}
	case KindStore:
		return "Store Error",
			"The worklist store could not be read or written.",
			[]string{
				"Check store credentials and permissions",
				"Verify the spreadsheet, file, or table exists",
			}
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return "Timeout",
			"An operation timed out.",
			[]string{"Check network connectivity", "Increase navigation_timeout"}
	}

	return "Unexpected Error",
		"An unexpected error occurred during the operation.",
		[]string{"Try running the command again", "Re-run with --verbose for details"}
}

// GetExitCode returns the process exit code for err. Hand-off is a clean exit.
func (s *Service) GetExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindHandOff:
		return 0
	case KindConfig:
		return 2
	case KindStore:
		return 5
	case KindBlocked:
		return 7
	}
	return 1
}

// FormatErrorForCLI renders err for terminal output
func (s *Service) FormatErrorForCLI(err error) string {
	title, message, suggestions := s.GetUserFriendlyError(err)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", title, message)

	if s.showTechnical {
		fmt.Fprintf(&b, "\nTechnical details: %s\n", err.Error())
	}

	if len(suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range suggestions {
			fmt.Fprintf(&b, "  - %s\n", suggestion)
		}
	}

	return b.String()
}

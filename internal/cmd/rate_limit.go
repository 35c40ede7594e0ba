package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	"github.com/leeyeon3724/civic-archive-api/internal/observability"
	"github.com/leeyeon3724/civic-archive-api/internal/security/ratelimit"
	"github.com/leeyeon3724/civic-archive-api/internal/server/guard"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and reset shared rate limit counters",
}

// counterState describes one client's counter in the current window.
type counterState struct {
	ClientKey         string `json:"client_key" yaml:"client_key"`
	Backend           string `json:"backend" yaml:"backend"`
	Bucket            int64  `json:"bucket" yaml:"bucket"`
	Count             int64  `json:"count" yaml:"count"`
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute"`
	Remaining         int64  `json:"remaining" yaml:"remaining"`
	WindowEndsIn      string `json:"window_ends_in" yaml:"window_ends_in"`
	Reset             *bool  `json:"reset,omitempty" yaml:"reset,omitempty"`
	DryRun            bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

func (s counterState) pairs() [][2]string {
	pairs := [][2]string{
		{"Client", s.ClientKey},
		{"Backend", s.Backend},
		{"Bucket", fmt.Sprintf("%d", s.Bucket)},
		{"Count", fmt.Sprintf("%d / %d", s.Count, s.RequestsPerMinute)},
		{"Remaining", fmt.Sprintf("%d", s.Remaining)},
		{"Window ends in", s.WindowEndsIn},
	}
	if s.DryRun {
		pairs = append(pairs, [2]string{"Reset", "dry run"})
	} else if s.Reset != nil {
		pairs = append(pairs, [2]string{"Reset", fmt.Sprintf("%t", *s.Reset)})
	}
	return pairs
}

// openInspector builds the configured limiter and returns its counter view.
// Only the redis backend is shared with running servers, so other backends
// are refused.
func openInspector(cfg *config.Config) (*ratelimit.Limiter, ratelimit.Inspector, error) {
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		return nil, nil, fmt.Errorf("rate limiting is disabled (rate_limit.requests_per_minute is 0)")
	}
	if cfg.RateLimit.Backend != config.BackendRedis {
		return nil, nil, fmt.Errorf("rate limit backend %q keeps counters in server memory; only %q can be inspected",
			cfg.RateLimit.Backend, config.BackendRedis)
	}

	limiter, err := guard.NewLimiter(cfg.RateLimit, guard.WithLogger(observability.CLILogger))
	if err != nil {
		return nil, nil, err
	}
	inspector, ok := limiter.Inspector()
	if !ok {
		_ = limiter.Close()
		return nil, nil, fmt.Errorf("rate limit backend %q does not support inspection", limiter.BackendName())
	}
	return limiter, inspector, nil
}

func clientFlag(cmd *cobra.Command) (string, error) {
	client, err := cmd.Flags().GetString("client")
	if err != nil {
		return "", err
	}
	client = strings.TrimSpace(client)
	if client == "" {
		return "", fmt.Errorf("--client is required")
	}
	return client, nil
}

func newCounterState(limiter *ratelimit.Limiter, clientKey string, now time.Time, count int64) counterState {
	quota := limiter.Quota()
	remaining := int64(quota.RequestsPerMinute) - count
	if remaining < 0 {
		remaining = 0
	}
	return counterState{
		ClientKey:         clientKey,
		Backend:           limiter.BackendName(),
		Bucket:            quota.Bucket(now),
		Count:             count,
		RequestsPerMinute: quota.RequestsPerMinute,
		Remaining:         remaining,
		WindowEndsIn:      quota.Remaining(now).Round(time.Second).String(),
	}
}

func init() {
	rateLimitCmd.AddCommand(rateLimitInspectCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

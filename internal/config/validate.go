package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validRetryModes = map[string]bool{
	"fixed":       true,
	"linear":      true,
	"exponential": true,
}

// Validate checks cross-field consistency after defaults are applied.
func (c *Config) Validate() error {
	var problems []string

	if c.BaseURL == "" {
		problems = append(problems, "base_url is required")
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("base_url %q is not an absolute URL", c.BaseURL))
	}

	if c.Pages.Inventory == "" {
		problems = append(problems, "pages.inventory is required")
	}

	if !validRetryModes[c.Retry.Mode] {
		problems = append(problems, fmt.Sprintf("retry.mode %q must be one of fixed, linear, exponential", c.Retry.Mode))
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries must be >= 0")
	}
	if c.Retry.Initial < 0 || c.Retry.Max < 0 {
		problems = append(problems, "retry delays must be >= 0")
	}

	for name, s := range c.Stages {
		if s.Concurrency < 0 {
			problems = append(problems, fmt.Sprintf("stages.%s.concurrency must be >= 0", name))
		}
		if s.MaxFailureRatio < 0 || s.MaxFailureRatio > 1 {
			problems = append(problems, fmt.Sprintf("stages.%s.max_failure_ratio must be within [0, 1]", name))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		problems = append(problems, "metrics.listen is required when metrics are enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

package am

import (
	"github.com/teranos/healthtwin/biomarker"
	"github.com/teranos/healthtwin/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.WithHint(
			errors.New("database.path cannot be empty"),
			"set [database] path in am.toml or TWIN_DB_PATH")
	}

	if c.Registry.Path != "" {
		if _, err := biomarker.FormatFromPath(c.Registry.Path); err != nil {
			return err
		}
	}

	// A factor below 1 would narrow the reference range
	if c.Validation.PlausibilityFactor < 1 {
		return errors.Newf("validation.plausibility_factor must be >= 1, got %g", c.Validation.PlausibilityFactor)
	}
	if c.Validation.FutureToleranceSeconds < 0 {
		return errors.Newf("validation.future_tolerance_seconds must be >= 0, got %d", c.Validation.FutureToleranceSeconds)
	}

	if c.Reasoning.MaxTokens <= 0 {
		return errors.Newf("reasoning.max_tokens must be > 0, got %d", c.Reasoning.MaxTokens)
	}
	if c.Reasoning.CharsPerToken <= 0 {
		return errors.Newf("reasoning.chars_per_token must be > 0, got %g", c.Reasoning.CharsPerToken)
	}
	if c.Reasoning.HistoryLimit < 0 {
		return errors.Newf("reasoning.history_limit must be >= 0, got %d", c.Reasoning.HistoryLimit)
	}
	if c.Reasoning.StableThreshold < 0 {
		return errors.Newf("reasoning.stable_threshold must be >= 0, got %g", c.Reasoning.StableThreshold)
	}
	if dup := firstDuplicate(c.Reasoning.DomainOrder); dup != "" {
		return errors.Newf("reasoning.domain_order lists %q twice", dup)
	}

	for _, d := range c.Schema.Domains {
		if d == "" {
			return errors.New("schema.domains cannot contain an empty name")
		}
	}
	if dup := firstDuplicate(c.Schema.Domains); dup != "" {
		return errors.Newf("schema.domains lists %q twice", dup)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

func firstDuplicate(names []string) string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n
		}
		seen[n] = true
	}
	return ""
}

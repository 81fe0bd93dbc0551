package api

import (
	"fmt"
	"net/url"
	"slices"

	"pickbatch/internal/batching"
	"pickbatch/internal/model"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

func validateOrderImport(req *model.OrderImportRequest) error {
	if req.WaveID == "" {
		return invalid("waveId is required")
	}
	if len(req.Orders) == 0 {
		return invalid("orders must not be empty")
	}
	for i, o := range req.Orders {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("orders[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStrategy(field, name string) error {
	if name == "" {
		return nil
	}
	if _, err := batching.ParseStrategy(name); err != nil {
		return invalid("%s: unknown strategy %q", field, name)
	}
	return nil
}

func validateWarmStart(name string) error {
	if err := validateStrategy("warmStart", name); err != nil {
		return err
	}
	if name == string(batching.StrategyExact) {
		return invalid("warmStart must be a heuristic strategy")
	}
	return nil
}

func validatePlanRequest(req *model.PlanRequest) error {
	if req.WaveID == "" {
		return invalid("waveId is required")
	}
	if req.MaxBatchSize < 0 {
		return invalid("maxBatchSize must be >= 1")
	}
	if req.TimeLimitMs < 0 {
		return invalid("timeLimitMs must be >= 0")
	}
	if err := validateStrategy("strategy", req.Strategy); err != nil {
		return err
	}
	return validateWarmStart(req.WarmStart)
}

func validateCompareRequest(req *model.CompareRequest) error {
	if req.WaveID == "" {
		return invalid("waveId is required")
	}
	if req.MaxBatchSize < 0 {
		return invalid("maxBatchSize must be >= 1")
	}
	if req.TimeLimitMs < 0 {
		return invalid("timeLimitMs must be >= 0")
	}
	seen := map[string]bool{}
	for _, s := range req.Strategies {
		if err := validateStrategy("strategies", s); err != nil {
			return err
		}
		if seen[s] {
			return invalid("strategy %q listed twice", s)
		}
		seen[s] = true
	}
	return validateWarmStart(req.WarmStart)
}

func validatePlannerConfig(c *model.PlannerConfig) error {
	if c.MaxBatchSize < 0 {
		return invalid("maxBatchSize must be >= 1")
	}
	if c.TimeLimitMs < 0 {
		return invalid("timeLimitMs must be >= 0")
	}
	if err := validateStrategy("defaultStrategy", c.DefaultStrategy); err != nil {
		return err
	}
	return validateWarmStart(c.WarmStart)
}

func validateSubscription(req *model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url must be an absolute http(s) URL")
	}
	if len(req.Events) == 0 {
		return invalid("events must not be empty")
	}
	for _, e := range req.Events {
		if !slices.Contains(model.EventTypes(), e) {
			return invalid("unknown event %q (allowed: %v)", e, model.EventTypes())
		}
	}
	return nil
}

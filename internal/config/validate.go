package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.TradingMode))
	if mode != "" && mode != "paper" && mode != "live" {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}

	if c.Poller.PollInterval <= 0 {
		return fmt.Errorf("poller.poll_interval must be > 0, got %s", c.Poller.PollInterval)
	}
	if c.Poller.PageSize <= 0 {
		return fmt.Errorf("poller.page_size must be > 0, got %d", c.Poller.PageSize)
	}
	if c.Poller.CompleteEvery <= 0 {
		return fmt.Errorf("poller.complete_every must be > 0, got %d", c.Poller.CompleteEvery)
	}

	if c.Watched.ReconcileInterval <= 0 {
		return fmt.Errorf("watched.reconcile_interval must be > 0, got %s", c.Watched.ReconcileInterval)
	}
	if c.Watched.SkipDeleteFailPctMax < 0 || c.Watched.SkipDeleteFailPctMax > 1 {
		return fmt.Errorf("watched.skip_delete_fail_pct_max must be within [0,1], got %f", c.Watched.SkipDeleteFailPctMax)
	}
	if c.Watched.WSMaxSubscriptions <= 0 {
		return fmt.Errorf("watched.ws_max_subscriptions must be > 0, got %d", c.Watched.WSMaxSubscriptions)
	}

	if c.Copy.MinCopyAmountUSD < 0 {
		return fmt.Errorf("copy.min_copy_amount_usd must be >= 0, got %f", c.Copy.MinCopyAmountUSD)
	}
	if c.Copy.MinAllocationPercentage <= 0 || c.Copy.MinAllocationPercentage > 100 {
		return fmt.Errorf("copy.min_allocation_percentage must be within (0,100], got %f", c.Copy.MinAllocationPercentage)
	}
	if c.Copy.MaxAllocationPercentage < c.Copy.MinAllocationPercentage || c.Copy.MaxAllocationPercentage > 100 {
		return fmt.Errorf("copy.max_allocation_percentage must be within [min,100], got %f", c.Copy.MaxAllocationPercentage)
	}

	if c.Smart.SyncInterval <= 0 {
		return fmt.Errorf("smart.sync_interval must be > 0, got %s", c.Smart.SyncInterval)
	}
	if c.Smart.InvalidRateAlert < 0 || c.Smart.InvalidRateAlert > 1 {
		return fmt.Errorf("smart.invalid_rate_alert must be within [0,1], got %f", c.Smart.InvalidRateAlert)
	}

	if c.TPSL.CheckInterval <= 0 {
		return fmt.Errorf("tpsl.check_interval must be > 0, got %s", c.TPSL.CheckInterval)
	}
	if c.TPSL.BatchSize <= 0 {
		return fmt.Errorf("tpsl.batch_size must be > 0, got %d", c.TPSL.BatchSize)
	}
	if c.TPSL.CloseThresholdPct <= 0 || c.TPSL.CloseThresholdPct > 1 {
		return fmt.Errorf("tpsl.close_threshold_pct must be within (0,1], got %f", c.TPSL.CloseThresholdPct)
	}

	return nil
}

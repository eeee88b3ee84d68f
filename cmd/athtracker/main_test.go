package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"call-ath-tracker/internal/config"
	"call-ath-tracker/internal/orchestrator"
)

type countingRunner struct {
	ticks []orchestrator.Tick
}

func (c *countingRunner) record(t orchestrator.Tick) (*orchestrator.RunResult, error) {
	c.ticks = append(c.ticks, t)
	return &orchestrator.RunResult{Tick: t}, nil
}

func (c *countingRunner) RunScan(context.Context, orchestrator.Request) (*orchestrator.RunResult, error) {
	return c.record(orchestrator.TickScan)
}

func (c *countingRunner) RunAudit(context.Context, orchestrator.Request) (*orchestrator.RunResult, error) {
	return c.record(orchestrator.TickAudit)
}

func (c *countingRunner) RunLiquidity(context.Context, orchestrator.Request) (*orchestrator.RunResult, error) {
	return c.record(orchestrator.TickLiquidity)
}

func TestScheduledTicks(t *testing.T) {
	cfg := config.NewDefaultsOnly()
	if got := scheduledTicks(cfg); len(got) != 0 {
		t.Fatalf("expected no scheduled ticks by default, got %d", len(got))
	}

	cfg.Schedule.AuditInterval = time.Hour
	got := scheduledTicks(cfg)
	if len(got) != 1 {
		t.Fatalf("expected 1 scheduled tick, got %d", len(got))
	}
	if got[0].tick != orchestrator.TickAudit {
		t.Errorf("expected audit tick, got %s", got[0].tick)
	}
	if got[0].req.Limit != cfg.Audit.Limit {
		t.Errorf("expected audit limit %d, got %d", cfg.Audit.Limit, got[0].req.Limit)
	}
}

func TestRunTick(t *testing.T) {
	r := &countingRunner{}
	ctx := context.Background()

	for _, tick := range []orchestrator.Tick{orchestrator.TickLiquidity, orchestrator.TickScan, orchestrator.TickAudit} {
		res, err := runTick(ctx, r, tick, orchestrator.Request{})
		if err != nil {
			t.Fatalf("runTick(%s): %v", tick, err)
		}
		if res.Tick != tick {
			t.Errorf("expected result for %s, got %s", tick, res.Tick)
		}
	}
	if _, err := runTick(ctx, r, "backfill", orchestrator.Request{}); err == nil {
		t.Error("expected error for unknown tick")
	}
	if len(r.ticks) != 3 {
		t.Errorf("expected 3 runs, got %d", len(r.ticks))
	}
}

func TestBuildApp_Memory(t *testing.T) {
	cfg := config.NewDefaultsOnly()
	cfg.Storage.UseMemory = true
	cfg.Alert.Stream = true

	a, err := buildApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	if a.hub == nil {
		t.Error("expected stream hub")
	}
	if a.orchestrator == nil {
		t.Fatal("expected orchestrator")
	}

	res, err := a.orchestrator.RunScan(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("RunScan on empty store: %v", err)
	}
	if res.Processed != 0 {
		t.Errorf("expected nothing processed, got %d", res.Processed)
	}

	ctx, cancel := shutdownContext()
	defer cancel()
	if err := a.close(ctx); err != nil {
		t.Errorf("close: %v", err)
	}
}

package gc

import (
	"context"
	"testing"
	"time"

	"github.com/SharedCode/kvenv"
)

func TestFetchExpiredLoggablesDoesNotBlockWithRunningCollector(t *testing.T) {
	c := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Finish()

	done := make(chan struct{})
	go func() {
		c.FetchExpiredLoggables(ctx, []kvenv.TreeAddress{1, 2, 3})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("FetchExpiredLoggables blocked")
	}
}

func TestSuspendResume(t *testing.T) {
	c := New(nil, nil)
	c.Suspend()
	if !c.suspended.Load() {
		t.Fatalf("expected suspended")
	}
	c.Resume()
	if c.suspended.Load() {
		t.Fatalf("expected resumed")
	}
}

func TestIsUtilizationProfile(t *testing.T) {
	c := New(nil, nil)
	if !c.IsUtilizationProfile(utilizationProfileStoreName) {
		t.Fatalf("expected reserved store name to be recognized")
	}
	if c.IsUtilizationProfile("orders") {
		t.Fatalf("ordinary store name should not be recognized as the utilization profile")
	}
}

func TestSaveUtilizationProfileNoopWithoutS3(t *testing.T) {
	c := New(nil, nil)
	c.RecordUsage("orders", 100, 20)
	if err := c.SaveUtilizationProfile(context.Background()); err != nil {
		t.Fatalf("expected no-op success without an S3Profile, got %v", err)
	}
}

func TestPolicyEligibility(t *testing.T) {
	p, err := NewPolicy(`age_seconds > 3600 && store != "audit"`)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	ok, err := p.Eligible(Loggable{StoreName: "orders", AgeSecs: 7200})
	if err != nil || !ok {
		t.Fatalf("expected orders at 7200s to be eligible, ok=%v err=%v", ok, err)
	}
	ok, err = p.Eligible(Loggable{StoreName: "audit", AgeSecs: 7200})
	if err != nil || ok {
		t.Fatalf("expected audit store to never be eligible, ok=%v err=%v", ok, err)
	}
	ok, err = p.Eligible(Loggable{StoreName: "orders", AgeSecs: 10})
	if err != nil || ok {
		t.Fatalf("expected a fresh record to be ineligible, ok=%v err=%v", ok, err)
	}
}

func TestNilPolicyAcceptsEverything(t *testing.T) {
	var p *Policy
	ok, err := p.Eligible(Loggable{StoreName: "anything"})
	if err != nil || !ok {
		t.Fatalf("expected nil policy to accept everything, ok=%v err=%v", ok, err)
	}
}

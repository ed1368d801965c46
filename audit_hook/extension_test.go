package audithook_test

import (
	"context"
	"testing"
	"time"

	audithook "github.com/xraph/tierledger/audit_hook"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/types"
)

func collect() (*[]*audithook.AuditEvent, audithook.RecorderFunc) {
	var events []*audithook.AuditEvent
	return &events, func(_ context.Context, e *audithook.AuditEvent) error {
		events = append(events, e)
		return nil
	}
}

func TestUnsubscribeWithForfeitIsWarning(t *testing.T) {
	events, rec := collect()
	ext := audithook.New(rec)
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), Account: "alice", TierID: 2}

	err := ext.OnUnsubscribed(context.Background(), sub, subscription.Settlement{
		Refund:    types.ZeroAmount(),
		Accrued:   types.NewAmount(10),
		Forfeited: types.NewAmount(90),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(*events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*events))
	}
	e := (*events)[0]
	if e.Action != audithook.ActionForfeited || e.Severity != audithook.SeverityWarning {
		t.Errorf("expected forfeited warning, got %s/%s", e.Action, e.Severity)
	}
	if e.ResourceID != sub.ID.String() || e.Metadata["forfeited"] != "90" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestDisabledActionsAreSkipped(t *testing.T) {
	events, rec := collect()
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionDistributionDeferred))
	ctx := context.Background()

	if err := ext.OnDistributionDeferred(ctx, t0); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnPauseChanged(ctx, true); err != nil {
		t.Fatal(err)
	}
	if len(*events) != 1 || (*events)[0].Action != audithook.ActionPaused {
		t.Errorf("expected only the pause event, got %d events", len(*events))
	}
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

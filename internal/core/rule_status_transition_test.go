package core

import (
	"context"
	"testing"

	"assetcore/pkg/domain"
)

func evaluateAssetRule(t *testing.T, rule domain.Rule, before, after Asset) Result {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore(domain.NewRulesEngine())
	var res Result
	err := store.View(ctx, func(v TransactionView) error {
		change := domain.Change{Entity: EntityAsset, Action: ActionUpdate, EntityID: after.ID}
		if before.ID != "" {
			change.Before = mustChangePayload(t, before)
		}
		change.After = mustChangePayload(t, after)
		var evalErr error
		res, evalErr = rule.Evaluate(ctx, v, []domain.Change{change})
		return evalErr
	})
	if err != nil {
		t.Fatalf("evaluate rule: %v", err)
	}
	return res
}

func TestStatusTransitionAllowsAssignment(t *testing.T) {
	before := Asset{Base: Base{ID: "a1"}, Status: StatusAvailable}
	after := Asset{Base: Base{ID: "a1"}, Status: StatusUnavailable}
	res := evaluateAssetRule(t, StatusTransitionRule(), before, after)
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", res.Violations)
	}
}

func TestStatusTransitionAllowsReactivation(t *testing.T) {
	before := Asset{Base: Base{ID: "a1"}, Status: StatusInactive}
	for _, target := range []AssetStatus{StatusAvailable, StatusUnavailable} {
		after := Asset{Base: Base{ID: "a1"}, Status: target}
		res := evaluateAssetRule(t, StatusTransitionRule(), before, after)
		if len(res.Violations) != 0 {
			t.Fatalf("reactivation to %s blocked: %+v", target, res.Violations)
		}
	}
}

func TestStatusTransitionBlocksInactiveToMaintenance(t *testing.T) {
	before := Asset{Base: Base{ID: "a1"}, Status: StatusInactive}
	after := Asset{Base: Base{ID: "a1"}, Status: StatusMaintenance}
	res := evaluateAssetRule(t, StatusTransitionRule(), before, after)
	if !res.HasBlocking() {
		t.Fatal("expected blocking violation when an inactive asset is sent to maintenance")
	}
}

func TestStatusTransitionBlocksUnavailableToMaintenance(t *testing.T) {
	before := Asset{Base: Base{ID: "a1"}, Status: StatusUnavailable}
	after := Asset{Base: Base{ID: "a1"}, Status: StatusMaintenance}
	res := evaluateAssetRule(t, StatusTransitionRule(), before, after)
	if !res.HasBlocking() {
		t.Fatal("expected blocking violation for assigned asset sent to maintenance")
	}
}

func TestStatusTransitionBlocksUnknownStatus(t *testing.T) {
	after := Asset{Base: Base{ID: "a1"}, Status: domain.AssetStatus("vanished")}
	res := evaluateAssetRule(t, StatusTransitionRule(), Asset{}, after)
	if !res.HasBlocking() {
		t.Fatal("expected blocking violation for unknown status")
	}
}

func TestStatusTransitionIgnoresNoOp(t *testing.T) {
	same := Asset{Base: Base{ID: "a1"}, Status: StatusMaintenance}
	res := evaluateAssetRule(t, StatusTransitionRule(), same, same)
	if len(res.Violations) != 0 {
		t.Fatalf("no-op update should pass, got %+v", res.Violations)
	}
}

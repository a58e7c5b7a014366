package core

import (
	"context"
	"fmt"

	"assetcore/pkg/domain"
)

// StatusTransitionRule blocks illegal moves through the asset status machine.
func StatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

// Inactive assets may only re-enter circulation through a reactivation edit,
// which restores available or, when custody survived deactivation,
// unavailable. Every other exit from inactive stays blocked.
var assetStatusMachine = struct {
	valid       map[string]struct{}
	transitions map[string]map[string]struct{}
}{
	valid: toSet(
		string(domain.StatusAvailable),
		string(domain.StatusUnavailable),
		string(domain.StatusMaintenance),
		string(domain.StatusInactive),
	),
	transitions: map[string]map[string]struct{}{
		string(domain.StatusAvailable):   toSet(string(domain.StatusUnavailable), string(domain.StatusMaintenance), string(domain.StatusInactive)),
		string(domain.StatusUnavailable): toSet(string(domain.StatusAvailable), string(domain.StatusInactive)),
		string(domain.StatusMaintenance): toSet(string(domain.StatusAvailable), string(domain.StatusInactive)),
		string(domain.StatusInactive):    toSet(string(domain.StatusAvailable), string(domain.StatusUnavailable)),
	},
}

func (statusTransitionRule) Name() string { return "status_transition" }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAsset {
			continue
		}

		after, ok := decodeChangePayload[domain.Asset](change.After)
		if !ok {
			continue
		}
		if _, valid := assetStatusMachine.valid[string(after.Status)]; !valid {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "status_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("asset %s is set to invalid status %s", after.ID, after.Status),
				Entity:   domain.EntityAsset,
				EntityID: after.ID,
			})
			continue
		}

		before, ok := decodeChangePayload[domain.Asset](change.Before)
		if !ok || before.Status == after.Status {
			continue
		}
		allowed := assetStatusMachine.transitions[string(before.Status)]
		if _, ok := allowed[string(after.Status)]; !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "status_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("illegal status transition for asset %s: %s to %s", before.ID, before.Status, after.Status),
				Entity:   domain.EntityAsset,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

package core

import (
	"context"
	"fmt"

	"assetcore/pkg/domain"
)

// MaintenancePendingRule keeps the maintenance ledger coherent: an asset has
// at most one pending maintenance record, and a pending record pins the
// asset's status to maintenance.
func MaintenancePendingRule() domain.Rule {
	return maintenancePendingRule{}
}

type maintenancePendingRule struct{}

func (maintenancePendingRule) Name() string { return "maintenance_pending" }

func (maintenancePendingRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	touched := make(map[string]struct{})
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityMaintenanceRecord:
			if rec, ok := decodeChangePayload[domain.MaintenanceRecord](change.After); ok {
				touched[rec.AssetID] = struct{}{}
			}
		case domain.EntityAsset:
			if asset, ok := decodeChangePayload[domain.Asset](change.After); ok {
				touched[asset.ID] = struct{}{}
			}
		}
	}
	if len(touched) == 0 {
		return res, nil
	}

	pending := make(map[string]int)
	for _, rec := range view.ListMaintenanceRecords() {
		if rec.Status == domain.MaintenancePending {
			pending[rec.AssetID]++
		}
	}

	for assetID := range touched {
		count := pending[assetID]
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "maintenance_pending",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("asset %s has %d pending maintenance records", assetID, count),
				Entity:   domain.EntityAsset,
				EntityID: assetID,
			})
			continue
		}
		asset, ok := view.FindAsset(assetID)
		if !ok {
			continue
		}
		if count == 1 && asset.Status != domain.StatusMaintenance {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "maintenance_pending",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("asset %s has pending maintenance but status %s", assetID, asset.Status),
				Entity:   domain.EntityAsset,
				EntityID: assetID,
			})
		}
		if count == 0 && asset.Status == domain.StatusMaintenance {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "maintenance_pending",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("asset %s is marked maintenance without a pending record", assetID),
				Entity:   domain.EntityAsset,
				EntityID: assetID,
			})
		}
	}
	return res, nil
}

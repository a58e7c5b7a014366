package core

import (
	"context"
	"fmt"

	"assetcore/pkg/domain"
)

// CustodyExclusivityRule enforces the single-holder invariant: an asset is
// held by at most one user or one project, never both, and the denormalized
// custody fields on the asset must agree with the custody ledger.
func CustodyExclusivityRule() domain.Rule {
	return custodyExclusivityRule{}
}

type custodyExclusivityRule struct{}

func (custodyExclusivityRule) Name() string { return "custody_exclusivity" }

func (custodyExclusivityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	touched := make(map[string]struct{})
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityAsset:
			if asset, ok := decodeChangePayload[domain.Asset](change.After); ok {
				touched[asset.ID] = struct{}{}
			}
		case domain.EntityCustodyRecord:
			if rec, ok := decodeChangePayload[domain.CustodyRecord](change.After); ok {
				touched[rec.AssetID] = struct{}{}
			}
			if rec, ok := decodeChangePayload[domain.CustodyRecord](change.Before); ok {
				touched[rec.AssetID] = struct{}{}
			}
		}
	}

	holders := make(map[string][]domain.CustodyRecord)
	for _, rec := range view.ListCustodyRecords() {
		holders[rec.AssetID] = append(holders[rec.AssetID], rec)
	}

	for assetID := range touched {
		recs := holders[assetID]
		if len(recs) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "custody_exclusivity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("asset %s is held by %d holders", assetID, len(recs)),
				Entity:   domain.EntityAsset,
				EntityID: assetID,
			})
			continue
		}
		asset, ok := view.FindAsset(assetID)
		if !ok {
			continue
		}
		switch {
		case len(recs) == 1:
			rec := recs[0]
			if asset.CustodyKind != rec.Holder || asset.CustodyRef == nil || *asset.CustodyRef != rec.HolderID {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "custody_exclusivity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("asset %s custody fields disagree with ledger (%s %s)", assetID, rec.Holder, rec.HolderID),
					Entity:   domain.EntityAsset,
					EntityID: assetID,
				})
			}
			if asset.Status == domain.StatusAvailable {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "custody_exclusivity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("asset %s is held but still marked available", assetID),
					Entity:   domain.EntityAsset,
					EntityID: assetID,
				})
			}
		default:
			if asset.Held() {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "custody_exclusivity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("asset %s claims a holder without a custody record", assetID),
					Entity:   domain.EntityAsset,
					EntityID: assetID,
				})
			}
		}
	}
	return res, nil
}

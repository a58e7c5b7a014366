package core

import (
	"context"
	"fmt"

	"assetcore/pkg/domain"
)

// LocationReferenceRule warns when an asset references an office name that no
// location row carries. Stale references are tolerated (the hierarchy index
// degrades them to a singleton scope) but worth surfacing.
func LocationReferenceRule() domain.Rule {
	return locationReferenceRule{}
}

type locationReferenceRule struct{}

func (locationReferenceRule) Name() string { return "location_reference" }

func (locationReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAsset {
			continue
		}
		asset, ok := decodeChangePayload[domain.Asset](change.After)
		if !ok || asset.Office == "" {
			continue
		}
		if _, found := view.FindLocationByName(asset.Office); !found {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "location_reference",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("asset %s references unknown office %q", asset.ID, asset.Office),
				Entity:   domain.EntityAsset,
				EntityID: asset.ID,
			})
		}
	}
	return res, nil
}

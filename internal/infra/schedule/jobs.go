package schedule

import (
	"context"
	"log/slog"

	"rentpool/internal/app/dto"
	fleetapp "rentpool/internal/app/handlers/fleet"
	"rentpool/internal/app/queries"
)

// FleetAudit asks for the group invariant report and logs every violation.
// It never repairs anything.
func FleetAudit(bus queries.Bus, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		report, err := queries.Ask[fleetapp.AuditGroupsQuery, dto.AuditReport](ctx, bus, fleetapp.AuditGroupsQuery{})
		if err != nil {
			return err
		}
		for _, v := range report.Violations {
			logger.Warn("fleet invariant violated", "group_id", v.GroupID, "rule", v.Rule, "detail", v.Detail)
		}
		logger.Info("fleet audit finished", "groups", report.GroupsChecked, "violations", len(report.Violations))
		return nil
	}
}

type refresher interface {
	Refresh(ctx context.Context) error
}

// HealthRefresh re-runs readiness checks so /readyz and gRPC health stay current.
func HealthRefresh(h refresher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return h.Refresh(ctx)
	}
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// IdempotencyPurge removes expired idempotency rows for stores without native TTL.
func IdempotencyPurge(p purger, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("expired idempotency keys purged", "count", n)
		}
		return nil
	}
}

package fleet

import (
	"context"
	"strings"

	"rentpool/internal/app/dto"
	"rentpool/internal/app/handlers/support"
	"rentpool/internal/app/queries"
	domainfleet "rentpool/internal/domain/fleet"
)

const (
	getGroupKey    = "fleet.get_group"
	getUnitKey     = "fleet.get_unit"
	auditGroupsKey = "fleet.audit_groups"
)

type GetGroupQuery struct {
	GroupID string `validate:"required"`
}

func (q GetGroupQuery) Key() string { return getGroupKey }

type GetGroupHandler struct {
	*Handlers
}

func (h GetGroupHandler) Handle(ctx context.Context, q GetGroupQuery) (dto.Group, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Group{}, err
	}
	defer cleanup()

	g, members, err := h.loadGroup(execCtx, unit.Fleet(), q.GroupID)
	if err != nil {
		return dto.Group{}, err
	}
	return dto.MapGroup(g, members), nil
}

type GetUnitQuery struct {
	UnitID string `validate:"required"`
}

func (q GetUnitQuery) Key() string { return getUnitKey }

type GetUnitHandler struct {
	*Handlers
}

func (h GetUnitHandler) Handle(ctx context.Context, q GetUnitQuery) (dto.Unit, error) {
	id := domainfleet.UnitID(strings.TrimSpace(q.UnitID))
	if id == "" {
		return dto.Unit{}, ErrUnitIDRequired
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Unit{}, err
	}
	defer cleanup()

	u, err := unit.Fleet().Unit(execCtx, id)
	if err != nil {
		return dto.Unit{}, err
	}
	return dto.MapUnit(u), nil
}

// AuditGroupsQuery checks every group against the pool invariants. It reports
// and never repairs.
type AuditGroupsQuery struct{}

func (q AuditGroupsQuery) Key() string { return auditGroupsKey }

type AuditGroupsHandler struct {
	*Handlers
}

func (h AuditGroupsHandler) Handle(ctx context.Context, _ AuditGroupsQuery) (dto.AuditReport, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.AuditReport{}, err
	}
	defer cleanup()

	repo := unit.Fleet()
	groups, err := repo.Groups(execCtx)
	if err != nil {
		return dto.AuditReport{}, err
	}
	var violations []domainfleet.Violation
	for _, g := range groups {
		members, err := repo.Members(execCtx, g.ID)
		if err != nil {
			return dto.AuditReport{}, err
		}
		violations = append(violations, domainfleet.CheckInvariants(g, members)...)
	}
	for _, v := range violations {
		h.log().Warn("fleet invariant violated", "group_id", v.GroupID, "rule", v.Rule, "detail", v.Detail)
	}
	return dto.AuditReport{GroupsChecked: len(groups), Violations: dto.MapViolations(violations)}, nil
}

var _ queries.Handler[GetGroupQuery, dto.Group] = GetGroupHandler{}
var _ queries.Handler[GetUnitQuery, dto.Unit] = GetUnitHandler{}
var _ queries.Handler[AuditGroupsQuery, dto.AuditReport] = AuditGroupsHandler{}

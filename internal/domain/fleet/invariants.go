package fleet

import "fmt"

type Violation struct {
	GroupID GroupID
	Rule    string
	Detail  string
}

func (v Violation) String() string {
	return fmt.Sprintf("group %s: %s: %s", v.GroupID, v.Rule, v.Detail)
}

// CheckInvariants reports structural problems of a group and its members.
func CheckInvariants(g *Group, members []*Unit) []Violation {
	var out []Violation
	add := func(rule, format string, args ...any) {
		out = append(out, Violation{GroupID: g.ID, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	if len(members) == 0 {
		add("empty_group", "group has no members")
	}
	if g.TotalQuantity != len(members) {
		add("quantity_mismatch", "total_quantity=%d members=%d", g.TotalQuantity, len(members))
	}
	primaries := 0
	positions := make(map[int]UnitID, len(members))
	for _, m := range members {
		if m.GroupID != g.ID {
			add("foreign_member", "unit %s belongs to %q", m.ID, m.GroupID)
		}
		if m.VehicleType != g.VehicleType {
			add("heterogeneous_pool", "unit %s is %q, group is %q", m.ID, m.VehicleType, g.VehicleType)
		}
		if m.IsGroupPrimary {
			primaries++
		}
		if other, dup := positions[m.Position]; dup {
			add("duplicate_position", "units %s and %s share position %d", other, m.ID, m.Position)
		}
		positions[m.Position] = m.ID
	}
	if primaries > 1 {
		add("multiple_primaries", "%d units flagged primary", primaries)
	}
	return out
}

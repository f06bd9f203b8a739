package fleet

import "time"

type GroupCreated struct {
	GroupID     GroupID
	Name        string
	VehicleType string
	Units       []UnitID
	Strategy    string
	At          time.Time
}

func (e GroupCreated) EventName() string     { return "fleet.group_created" }
func (e GroupCreated) AggregateID() string   { return string(e.GroupID) }
func (e GroupCreated) OccurredAt() time.Time { return e.At }

type UnitsAdded struct {
	GroupID       GroupID
	Units         []UnitID
	TotalQuantity int
	At            time.Time
}

func (e UnitsAdded) EventName() string     { return "fleet.units_added" }
func (e UnitsAdded) AggregateID() string   { return string(e.GroupID) }
func (e UnitsAdded) OccurredAt() time.Time { return e.At }

type UnitDetached struct {
	GroupID       GroupID
	UnitID        UnitID
	PromotedID    UnitID `json:",omitempty"`
	TotalQuantity int
	At            time.Time
}

func (e UnitDetached) EventName() string     { return "fleet.unit_detached" }
func (e UnitDetached) AggregateID() string   { return string(e.GroupID) }
func (e UnitDetached) OccurredAt() time.Time { return e.At }

type GroupDissolved struct {
	GroupID GroupID
	At      time.Time
}

func (e GroupDissolved) EventName() string     { return "fleet.group_dissolved" }
func (e GroupDissolved) AggregateID() string   { return string(e.GroupID) }
func (e GroupDissolved) OccurredAt() time.Time { return e.At }

type AttributesPropagated struct {
	GroupID GroupID
	Applied []Category
	Skipped []Category
	Units   int
	At      time.Time
}

func (e AttributesPropagated) EventName() string     { return "fleet.attributes_propagated" }
func (e AttributesPropagated) AggregateID() string   { return string(e.GroupID) }
func (e AttributesPropagated) OccurredAt() time.Time { return e.At }

type PolicyUpdated struct {
	GroupID  GroupID
	Strategy string
	Resynced []Category
	Renamed  bool
	At       time.Time
}

func (e PolicyUpdated) EventName() string     { return "fleet.policy_updated" }
func (e PolicyUpdated) AggregateID() string   { return string(e.GroupID) }
func (e PolicyUpdated) OccurredAt() time.Time { return e.At }

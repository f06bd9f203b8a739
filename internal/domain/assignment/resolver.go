package assignment

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
)

var ErrNoUnitsAvailable = errors.New("assignment: no units available")

// FreeSet yields the free members of a group ordered by position.
type FreeSet interface {
	FreeUnitsInGroup(ctx context.Context, groupID fleet.GroupID, r daterange.DateRange) ([]*fleet.Unit, error)
}

// UsageCounter reports historical load per unit.
type UsageCounter interface {
	UsageCounts(ctx context.Context, units []fleet.UnitID) (map[fleet.UnitID]int, error)
}

// Resolver picks one candidate unit from a group. It never reserves anything.
type Resolver struct {
	Free   FreeSet
	Usage  UsageCounter
	Random *Source
}

// Resolve returns a candidate unit for the range. Units listed in exclude are
// skipped, which lets callers discard candidates that already lost a race.
func (r *Resolver) Resolve(ctx context.Context, groupID fleet.GroupID, rng daterange.DateRange, strategy fleet.Strategy, exclude ...fleet.UnitID) (*fleet.Unit, error) {
	free, err := r.Free.FreeUnitsInGroup(ctx, groupID, rng)
	if err != nil {
		return nil, err
	}
	if len(exclude) > 0 {
		free = slices.DeleteFunc(slices.Clone(free), func(u *fleet.Unit) bool {
			return slices.Contains(exclude, u.ID)
		})
	}
	return r.Pick(ctx, free, strategy)
}

// Pick applies the strategy to an already computed free set.
func (r *Resolver) Pick(ctx context.Context, free []*fleet.Unit, strategy fleet.Strategy) (*fleet.Unit, error) {
	p, err := r.picker(strategy)
	if err != nil {
		return nil, err
	}
	if len(free) == 0 {
		return nil, ErrNoUnitsAvailable
	}
	ordered := slices.Clone(free)
	fleet.SortByPosition(ordered)
	return p.pick(ctx, ordered)
}

// picker receives a non-empty free set sorted by position.
type picker interface {
	pick(ctx context.Context, free []*fleet.Unit) (*fleet.Unit, error)
}

func (r *Resolver) picker(s fleet.Strategy) (picker, error) {
	switch s {
	case fleet.StrategySequential:
		return sequential{}, nil
	case fleet.StrategyRandom:
		if r.Random == nil {
			return nil, errors.New("assignment: random strategy requires a source")
		}
		return uniform{src: r.Random}, nil
	case fleet.StrategyLeastUsed:
		if r.Usage == nil {
			return nil, errors.New("assignment: least_used strategy requires a usage counter")
		}
		return leastUsed{usage: r.Usage}, nil
	default:
		return nil, fmt.Errorf("%w: %d", fleet.ErrUnknownStrategy, s)
	}
}

type sequential struct{}

func (sequential) pick(_ context.Context, free []*fleet.Unit) (*fleet.Unit, error) {
	return free[0], nil
}

type uniform struct {
	src *Source
}

func (u uniform) pick(_ context.Context, free []*fleet.Unit) (*fleet.Unit, error) {
	return free[u.src.IntN(len(free))], nil
}

type leastUsed struct {
	usage UsageCounter
}

// pick keeps the first minimum, so ties go to the lowest position.
func (l leastUsed) pick(ctx context.Context, free []*fleet.Unit) (*fleet.Unit, error) {
	counts, err := l.usage.UsageCounts(ctx, fleet.UnitIDs(free))
	if err != nil {
		return nil, err
	}
	best := free[0]
	for _, u := range free[1:] {
		if counts[u.ID] < counts[best.ID] {
			best = u
		}
	}
	return best, nil
}

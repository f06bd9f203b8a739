package fleet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownStrategy = errors.New("fleet: unknown assignment strategy")

// Strategy selects how one concrete unit is picked from a group's free set.
type Strategy uint8

const (
	StrategySequential Strategy = iota + 1
	StrategyRandom
	StrategyLeastUsed
)

// Strategies lists every defined strategy.
var Strategies = []Strategy{StrategySequential, StrategyRandom, StrategyLeastUsed}

func (s Strategy) String() string {
	switch s {
	case StrategySequential:
		return "sequential"
	case StrategyRandom:
		return "random"
	case StrategyLeastUsed:
		return "least_used"
	default:
		return "strategy(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyRandom, StrategyLeastUsed:
		return true
	}
	return false
}

func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sequential":
		return StrategySequential, nil
	case "random":
		return StrategyRandom, nil
	case "least_used", "least-used", "leastused":
		return StrategyLeastUsed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, raw)
}

func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, s)
	}
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Category groups unit attributes for propagation decisions.
type Category string

const (
	CategoryPricing        Category = "pricing"
	CategorySpecifications Category = "specifications"
	CategoryImages         Category = "images"
	CategoryDescription    Category = "description"
	CategoryAvailability   Category = "availability"
)

const DefaultNamingTemplate = "{name} #{n}"

// Policy is the per-group configuration.
type Policy struct {
	Strategy            Strategy
	NamingTemplate      string
	SharePricing        bool
	ShareSpecifications bool
	ShareImages         bool
}

func DefaultPolicy() Policy {
	return Policy{
		Strategy:            StrategySequential,
		NamingTemplate:      DefaultNamingTemplate,
		SharePricing:        true,
		ShareSpecifications: true,
		ShareImages:         true,
	}
}

// Normalized fills zero values with defaults.
func (p Policy) Normalized() Policy {
	if p.Strategy == 0 {
		p.Strategy = StrategySequential
	}
	p.NamingTemplate = strings.TrimSpace(p.NamingTemplate)
	if p.NamingTemplate == "" {
		p.NamingTemplate = DefaultNamingTemplate
	}
	return p
}

func (p Policy) Validate() error {
	if !p.Strategy.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStrategy, p.Strategy)
	}
	return nil
}

// Shares reports whether edits to the category must reach every member.
// Description and availability are not policy-controlled and always propagate.
func (p Policy) Shares(c Category) bool {
	switch c {
	case CategoryPricing:
		return p.SharePricing
	case CategorySpecifications:
		return p.ShareSpecifications
	case CategoryImages:
		return p.ShareImages
	default:
		return true
	}
}

func (p Policy) sharedCategories() []Category {
	var out []Category
	for _, c := range []Category{CategoryPricing, CategorySpecifications, CategoryImages} {
		if p.Shares(c) {
			out = append(out, c)
		}
	}
	return out
}

// DisplayName renders the naming template for a member position.
func (p Policy) DisplayName(groupName string, position int) string {
	tmpl := p.NamingTemplate
	if tmpl == "" {
		tmpl = DefaultNamingTemplate
	}
	r := strings.NewReplacer("{name}", groupName, "{n}", strconv.Itoa(position))
	return strings.TrimSpace(r.Replace(tmpl))
}

package main

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	fleetapp "rentpool/internal/app/handlers/fleet"
)

type demoGroup struct {
	name, vehicleType, price, strategy string
	quantity                           int
	specs                              map[string]string
}

var demoFleet = []demoGroup{
	{name: "Honda PCX", vehicleType: "scooter", price: "19.50", strategy: "sequential", quantity: 5, specs: map[string]string{"engine": "160cc"}},
	{name: "Trek FX 2", vehicleType: "bicycle", price: "12.00", strategy: "least_used", quantity: 8, specs: map[string]string{"frame": "M"}},
	{name: "Toyota Yaris", vehicleType: "car", price: "45.00", strategy: "random", quantity: 3, specs: map[string]string{"gearbox": "automatic"}},
}

// seedDemo creates a small fleet. Fixed idempotency keys keep restarts from
// duplicating it while the keys are retained.
func seedDemo(ctx context.Context, bus commands.Bus, logger *slog.Logger) error {
	for _, g := range demoFleet {
		group, err := commands.Dispatch[fleetapp.CreateGroupCommand, *dto.Group](ctx, bus, fleetapp.CreateGroupCommand{
			Name:            g.name,
			VehicleType:     g.vehicleType,
			Quantity:        g.quantity,
			Policy:          fleetapp.PolicyInput{Strategy: g.strategy},
			PricePerDay:     decimal.RequireFromString(g.price),
			Specifications:  g.specs,
			IdempotencyKeyV: "seed-demo-" + g.name,
		})
		if err != nil {
			return err
		}
		logger.Info("demo group ready", "group_id", group.ID, "name", g.name, "units", len(group.Units))
	}
	return nil
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eld-planner/internal/bus"
	"eld-planner/internal/hos"
)

type planOptions struct {
	file     string
	driver   string
	from     string
	pickup   string
	dropoff  string
	pickupMi float64
	pickupH  float64
	dropMi   float64
	dropH    float64
	cycle    float64
	start    string
	rules    string
	tz       string
	validate bool
}

func newPlanCmd() *cobra.Command {
	var o planOptions
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a trip offline and print the duty events and daily logs",
		Long: `Plan a trip without a database or NATS. The request is read as JSON from
--file ("-" for stdin) or assembled from flags, and the plan is printed as JSON.`,
		Example: `  eldplanner plan -f trip.json
  eldplanner plan --from Dallas --pickup Tulsa --dropoff Denver \
    --to-pickup-miles 257 --to-pickup-hours 4 --to-dropoff-miles 680 --to-dropoff-hours 10.5 --cycle-used 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.file, "file", "f", "", `JSON plan request file, "-" for stdin`)
	f.StringVar(&o.driver, "driver", "", "driver id")
	f.StringVar(&o.from, "from", "", "current location")
	f.StringVar(&o.pickup, "pickup", "", "pickup location")
	f.StringVar(&o.dropoff, "dropoff", "", "dropoff location")
	f.Float64Var(&o.pickupMi, "to-pickup-miles", 0, "distance to pickup in miles")
	f.Float64Var(&o.pickupH, "to-pickup-hours", 0, "drive time to pickup in hours")
	f.Float64Var(&o.dropMi, "to-dropoff-miles", 0, "distance from pickup to dropoff in miles")
	f.Float64Var(&o.dropH, "to-dropoff-hours", 0, "drive time from pickup to dropoff in hours")
	f.Float64Var(&o.cycle, "cycle-used", 0, "hours already used in the current cycle")
	f.StringVar(&o.start, "start", "", "start time, RFC3339 (default now)")
	f.StringVar(&o.rules, "cycle", "", "HOS cycle, 70_8 or 60_7 (default HOS_CYCLE)")
	f.StringVar(&o.tz, "tz", "", "home terminal time zone for daily logs (default TZ)")
	f.BoolVar(&o.validate, "validate", false, "exit with an error if the plan violates any HOS rule")
	return cmd
}

func runPlan(cmd *cobra.Command, o planOptions) error {
	cfg, lggr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = lggr.Sync() }()

	pr, err := readPlanRequest(cmd, o)
	if err != nil {
		return err
	}

	cycle := cfg.Cycle
	if o.rules != "" {
		if cycle, err = hos.ParseCycle(o.rules); err != nil {
			return err
		}
	}
	loc := cfg.Location
	if o.tz != "" {
		if loc, err = time.LoadLocation(o.tz); err != nil {
			return fmt.Errorf("invalid --tz: %w", err)
		}
	}
	planner, err := hos.NewPlanner(hos.RulesFor(cycle), loc)
	if err != nil {
		return err
	}

	req, err := pr.ToHOS()
	if err != nil {
		return err
	}
	if req.Start.IsZero() {
		req.Start = time.Now().In(loc)
	}
	plan, err := planner.Plan(req)
	if err != nil {
		return err
	}
	violations := hos.Validate(plan.Events, planner.Rules(), req.CycleUsed)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(bus.NewPlanResponse(plan, req, violations)); err != nil {
		return err
	}
	lggr.Named("plan").Debugw("planned", "days", len(plan.Logs), "stops", len(plan.Stops), "violations", len(violations))
	if o.validate && len(violations) > 0 {
		return fmt.Errorf("plan has %d HOS violations", len(violations))
	}
	return nil
}

func readPlanRequest(cmd *cobra.Command, o planOptions) (bus.PlanRequest, error) {
	var pr bus.PlanRequest
	if o.file == "" {
		if o.from == "" && o.pickup == "" && o.dropoff == "" {
			return pr, errors.New("either --file or --from/--pickup/--dropoff is required")
		}
		cycle := o.cycle
		pr = bus.PlanRequest{
			DriverID:         o.driver,
			CurrentLocation:  o.from,
			PickupLocation:   o.pickup,
			DropoffLocation:  o.dropoff,
			CurrentCycleUsed: &cycle,
			StartTime:        o.start,
			ToPickup:         bus.RouteLeg{DistanceMiles: o.pickupMi, DurationHours: o.pickupH},
			ToDropoff:        bus.RouteLeg{DistanceMiles: o.dropMi, DurationHours: o.dropH},
		}
		return pr, nil
	}

	var r io.Reader = cmd.InOrStdin()
	if o.file != "-" {
		f, err := os.Open(o.file)
		if err != nil {
			return pr, err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pr); err != nil {
		return pr, fmt.Errorf("decode plan request: %w", err)
	}
	if strings.TrimSpace(o.start) != "" {
		pr.StartTime = o.start
	}
	return pr, nil
}

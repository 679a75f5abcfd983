package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eld-planner/internal/bus"
	"eld-planner/internal/db"
	"eld-planner/internal/hos"
	"eld-planner/internal/logger"
	mmetrics "eld-planner/internal/metrics"
)

// ErrTripBusy is returned when a plan for the same trip is already in progress.
var ErrTripBusy = errors.New("trip is already being planned")

type Store interface {
	SavePlan(ctx context.Context, plan *hos.Plan, req hos.Request) error
	FetchPlan(ctx context.Context, tripID string) (*db.Trip, error)
	DeletePlan(ctx context.Context, tripID string) error
	ListTrips(ctx context.Context, driverID string, limit int) ([]db.TripSummary, error)
	CountTrips(ctx context.Context, driverID string) (int, error)
	FetchDutyEvents(ctx context.Context, driverID string, since, until time.Time, excludeTripID string) ([]hos.Event, error)
	ListActiveDrivers(ctx context.Context, since time.Time) ([]string, error)
}

type Bus interface {
	Publish(subject string, v any) error
	Serve(subject, queue string, h bus.HandlerFunc) (bus.Subscription, error)
}

type Options struct {
	Planner         *hos.Planner
	Store           Store
	Bus             Bus
	Subjects        bus.Subjects
	QueueGroup      string
	Workers         int
	RefreshInterval time.Duration
	Metrics         *mmetrics.Collector
	Logger          logger.Logger
	Now             func() time.Time
}

// Manager answers plan, trip and recap requests from the bus and keeps driver
// recaps fresh in the background.
type Manager struct {
	planner         *hos.Planner
	store           Store
	bus             Bus
	subjects        bus.Subjects
	queue           string
	refreshInterval time.Duration
	metrics         *mmetrics.Collector
	lggr            logger.Logger
	now             func() time.Time
	workers         int
	sem             chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelFunc // tripID -> cancel
	wg      sync.WaitGroup
	subs    []bus.Subscription
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

func NewManager(o Options) *Manager {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		planner:         o.Planner,
		store:           o.Store,
		bus:             o.Bus,
		subjects:        o.Subjects,
		queue:           o.QueueGroup,
		refreshInterval: o.RefreshInterval,
		metrics:         o.Metrics,
		lggr:            o.Logger.Named("worker"),
		now:             o.Now,
		workers:         o.Workers,
		sem:             make(chan struct{}, o.Workers),
		running:         make(map[string]context.CancelFunc),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start subscribes the request handlers. Work started by a request is canceled
// by Stop or when parent is done.
func (m *Manager) Start(parent context.Context) error {
	go func() {
		select {
		case <-parent.Done():
			m.cancel()
		case <-m.ctx.Done():
		}
	}()

	handlers := map[string]bus.HandlerFunc{
		m.subjects.PlanRequest():  m.handlePlan,
		m.subjects.TripGet():      m.handleTripGet,
		m.subjects.TripDelete():   m.handleTripDelete,
		m.subjects.TripList():     m.handleTripList,
		m.subjects.RecapRequest(): m.handleRecap,
	}
	for subject, h := range handlers {
		sub, err := m.bus.Serve(subject, m.queue, h)
		if err != nil {
			m.unsubscribe()
			return err
		}
		m.mu.Lock()
		m.subs = append(m.subs, sub)
		m.mu.Unlock()
		m.lggr.Infow("serving", "subject", subject, "queue", m.queue)
	}
	return nil
}

// async runs fn on its own goroutine once a worker slot is free and sends
// its result, or an ErrorReply, through respond. After Stop it replies with
// context.Canceled without running fn.
func (m *Manager) async(respond func(any) error, op string, fn func(ctx context.Context) (any, error)) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		_ = respond(errorReply(context.Canceled))
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.wg.Done()
		select {
		case m.sem <- struct{}{}:
		case <-m.ctx.Done():
			_ = respond(errorReply(m.ctx.Err()))
			return
		}
		defer func() { <-m.sem }()

		if m.metrics != nil {
			m.metrics.InFlight.Inc()
			defer m.metrics.InFlight.Dec()
		}
		v, err := fn(m.ctx)
		if err != nil {
			m.lggr.Warnw("request failed", "op", op, "err", err)
			v = errorReply(err)
		}
		if err := respond(v); err != nil {
			m.lggr.Errorw("reply failed", "op", op, "err", err)
		}
	}()
}

func (m *Manager) handlePlan(data []byte, respond func(any) error) {
	var pr bus.PlanRequest
	if err := decode(data, &pr); err != nil {
		m.countPlan("invalid")
		_ = respond(errorReply(err))
		return
	}
	m.async(respond, "plan", func(ctx context.Context) (any, error) {
		return m.Plan(ctx, pr)
	})
}

func (m *Manager) handleTripGet(data []byte, respond func(any) error) {
	var ref bus.TripRef
	if err := decodeTripRef(data, &ref); err != nil {
		_ = respond(errorReply(err))
		return
	}
	m.async(respond, "trip_get", func(ctx context.Context) (any, error) {
		return m.Trip(ctx, ref.TripID)
	})
}

func (m *Manager) handleTripDelete(data []byte, respond func(any) error) {
	var ref bus.TripRef
	if err := decodeTripRef(data, &ref); err != nil {
		_ = respond(errorReply(err))
		return
	}
	m.async(respond, "trip_delete", func(ctx context.Context) (any, error) {
		if err := m.store.DeletePlan(ctx, ref.TripID); err != nil {
			m.countDBError("delete_plan", err)
			return nil, err
		}
		m.lggr.Infow("trip deleted", "trip", ref.TripID)
		return bus.Deleted{TripID: ref.TripID, Deleted: true}, nil
	})
}

func (m *Manager) handleTripList(data []byte, respond func(any) error) {
	var lr bus.TripListRequest
	if len(data) > 0 {
		if err := decode(data, &lr); err != nil {
			_ = respond(errorReply(err))
			return
		}
	}
	if lr.Limit < 0 {
		_ = respond(errorReply(fmt.Errorf("%w: limit %d", hos.ErrInvalidRequest, lr.Limit)))
		return
	}
	driverID := strings.TrimSpace(lr.DriverID)
	m.async(respond, "trip_list", func(ctx context.Context) (any, error) {
		return m.Trips(ctx, driverID, lr.Limit)
	})
}

func (m *Manager) handleRecap(data []byte, respond func(any) error) {
	var rr bus.RecapRequest
	if err := decode(data, &rr); err != nil {
		_ = respond(errorReply(err))
		return
	}
	driverID := strings.TrimSpace(rr.DriverID)
	if driverID == "" {
		_ = respond(errorReply(fmt.Errorf("%w: driver_id is required", hos.ErrInvalidRequest)))
		return
	}
	at := m.now()
	if rr.At != "" {
		t, err := time.Parse(time.RFC3339, rr.At)
		if err != nil {
			_ = respond(errorReply(fmt.Errorf("%w: at %q", hos.ErrInvalidRequest, rr.At)))
			return
		}
		at = t
	}
	m.async(respond, "recap", func(ctx context.Context) (any, error) {
		rc, err := m.Recap(ctx, driverID, at)
		if err != nil {
			return nil, err
		}
		return m.recapMessage(ctx, driverID, rc)
	})
}

// Plan plans, validates, stores and announces one trip.
func (m *Manager) Plan(ctx context.Context, pr bus.PlanRequest) (*bus.PlanResponse, error) {
	start := time.Now()
	resp, err := m.plan(ctx, pr)
	switch {
	case err == nil:
		m.countPlan("ok")
	case errors.Is(err, hos.ErrInvalidRequest):
		m.countPlan("invalid")
	case errors.Is(err, ErrTripBusy):
		m.countPlan("busy")
	default:
		m.countPlan("error")
	}
	if m.metrics != nil {
		m.metrics.PlanDuration.Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func (m *Manager) plan(ctx context.Context, pr bus.PlanRequest) (*bus.PlanResponse, error) {
	req, err := pr.ToHOS()
	if err != nil {
		return nil, err
	}
	if req.DriverID == "" {
		return nil, fmt.Errorf("%w: driver_id is required", hos.ErrInvalidRequest)
	}
	if req.TripID == "" {
		req.TripID = uuid.NewString()
	}

	ctx, release, err := m.claim(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.Start.IsZero() {
		req.Start = m.now().In(m.planner.Location())
	}
	if !pr.HasCycleUsed() {
		// a replan replaces the stored trip, so its old events must not count
		rc, err := m.recap(ctx, req.DriverID, req.Start, req.TripID)
		if err != nil {
			return nil, fmt.Errorf("derive cycle hours: %w", err)
		}
		req.CycleUsed = rc.Used
	}

	plan, err := m.planner.Plan(req)
	if err != nil {
		return nil, err
	}
	violations := hos.Validate(plan.Events, m.planner.Rules(), req.CycleUsed)
	for _, v := range violations {
		if m.metrics != nil {
			m.metrics.Violations.WithLabelValues(v.Rule).Inc()
		}
		m.lggr.Warnw("planned schedule violates HOS", "trip", plan.TripID, "violation", v.String())
	}

	if err := m.store.SavePlan(ctx, plan, req); err != nil {
		m.countDBError("save_plan", err)
		return nil, fmt.Errorf("save plan %s: %w", plan.TripID, err)
	}
	if m.metrics != nil {
		m.metrics.PlannedDrivingHours.Observe(plan.TotalDriving.Hours())
		m.metrics.PlannedRestarts.Add(float64(plan.Restarts))
	}
	m.announce(plan, len(violations))

	m.lggr.Infow("trip planned",
		"trip", plan.TripID, "driver", plan.DriverID,
		"miles", plan.TotalMiles, "driving", plan.TotalDriving.String(),
		"stops", len(plan.Stops), "days", len(plan.Logs), "restarts", plan.Restarts)
	resp := bus.NewPlanResponse(plan, req, violations)
	return &resp, nil
}

// claim marks tripID as in progress; release must be called when done.
func (m *Manager) claim(parent context.Context, tripID string) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.running[tripID]; exists {
		return nil, nil, fmt.Errorf("trip %s: %w", tripID, ErrTripBusy)
	}
	ctx, cancel := context.WithCancel(parent)
	m.running[tripID] = cancel
	return ctx, func() {
		m.mu.Lock()
		delete(m.running, tripID)
		m.mu.Unlock()
		cancel()
	}, nil
}

// announce publishes the plan event and one message per daily log. Failures are
// logged; the plan is already stored.
func (m *Manager) announce(plan *hos.Plan, violations int) {
	evt := bus.TripPlanned{
		TripID:     plan.TripID,
		DriverID:   plan.DriverID,
		StartTime:  plan.Start,
		EndTime:    plan.End,
		TotalMiles: plan.TotalMiles,
		DriveTime:  plan.TotalDriving.Hours(),
		Stops:      len(plan.Stops),
		Days:       len(plan.Logs),
		Restarts:   plan.Restarts,
		Violations: violations,
		PlannedAt:  m.now(),
	}
	if err := m.bus.Publish(m.subjects.TripPlanned(plan.DriverID, plan.TripID), evt); err != nil {
		m.lggr.Errorw("publish trip planned", "trip", plan.TripID, "err", err)
	}
	for _, l := range plan.Logs {
		subject := m.subjects.DailyLog(plan.DriverID, l.Date)
		if err := m.bus.Publish(subject, bus.NewDailyLogMessage(plan.TripID, plan.DriverID, l)); err != nil {
			m.lggr.Errorw("publish daily log", "subject", subject, "err", err)
		}
	}
}

// Trip returns a stored plan.
func (m *Manager) Trip(ctx context.Context, tripID string) (*bus.PlanResponse, error) {
	t, err := m.store.FetchPlan(ctx, tripID)
	if err != nil {
		m.countDBError("fetch_plan", err)
		return nil, err
	}
	req := hos.Request{
		CurrentLocation: t.CurrentLocation,
		PickupLocation:  t.PickupLocation,
		DropoffLocation: t.DropoffLocation,
		CycleUsed:       t.CycleUsed,
	}
	resp := bus.NewPlanResponse(t.Plan, req, nil)
	return &resp, nil
}

// Trips lists stored trips, newest first.
func (m *Manager) Trips(ctx context.Context, driverID string, limit int) (*bus.TripList, error) {
	trips, err := m.store.ListTrips(ctx, driverID, limit)
	if err != nil {
		m.countDBError("list_trips", err)
		return nil, err
	}
	list := bus.NewTripList(trips)
	return &list, nil
}

// Recap computes a driver's cycle position at `at` from stored duty events.
func (m *Manager) Recap(ctx context.Context, driverID string, at time.Time) (hos.Recap, error) {
	return m.recap(ctx, driverID, at, "")
}

func (m *Manager) recap(ctx context.Context, driverID string, at time.Time, excludeTripID string) (hos.Recap, error) {
	rules := m.planner.Rules()
	events, err := m.store.FetchDutyEvents(ctx, driverID, at.Add(-rules.CycleWindow()), at, excludeTripID)
	if err != nil {
		m.countDBError("fetch_duty_events", err)
		return hos.Recap{}, err
	}
	return hos.ComputeRecap(events, at, rules), nil
}

func (m *Manager) recapMessage(ctx context.Context, driverID string, rc hos.Recap) (bus.RecapMessage, error) {
	msg := bus.NewRecapMessage(driverID, rc, m.planner.Rules())
	n, err := m.store.CountTrips(ctx, driverID)
	if err != nil {
		m.countDBError("count_trips", err)
		return msg, err
	}
	msg.RecentTrips = n
	return msg, nil
}

func (m *Manager) Stop() {
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	m.refreshWG.Wait()
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.unsubscribe()
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) unsubscribe() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			m.lggr.Warnw("drain subscription", "err", err)
		}
	}
}

// StartRefresher launches a background loop that periodically recomputes
// recaps for recently active drivers.
func (m *Manager) StartRefresher(parent context.Context) {
	if m.refreshInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.refreshCancel = cancel
	m.refreshWG.Add(1)
	go func() {
		defer m.refreshWG.Done()
		// immediate refresh on start
		if err := m.RefreshRecaps(ctx); err != nil {
			m.lggr.Warnf("refresh recaps error: %v", err)
		}
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.RefreshRecaps(ctx); err != nil {
					m.lggr.Warnf("refresh recaps error: %v", err)
				}
			}
		}
	}()
}

// RefreshRecaps recomputes and publishes the recap of every driver with duty
// events inside the current cycle window.
func (m *Manager) RefreshRecaps(ctx context.Context) error {
	now := m.now()
	rules := m.planner.Rules()
	drivers, err := m.store.ListActiveDrivers(ctx, now.Add(-rules.CycleWindow()))
	if err != nil {
		m.countDBError("list_active_drivers", err)
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, driverID := range drivers {
		driverID := driverID
		g.Go(func() error {
			rc, err := m.Recap(gctx, driverID, now)
			if err != nil {
				m.countRefresh("error")
				mu.Lock()
				errs = append(errs, fmt.Errorf("driver %s: %w", driverID, err))
				mu.Unlock()
				return nil
			}
			m.countRefresh("ok")
			if m.metrics != nil {
				m.metrics.DriverAvailableHours.WithLabelValues(driverID).Set(rc.Available.Hours())
			}
			msg, err := m.recapMessage(gctx, driverID, rc)
			if err != nil {
				m.lggr.Warnw("count trips", "driver", driverID, "err", err)
			}
			if err := m.bus.Publish(m.subjects.DriverRecap(driverID), msg); err != nil {
				m.lggr.Errorw("publish recap", "driver", driverID, "err", err)
			}
			if !rc.CanDriveFullShift {
				m.lggr.Infow("driver short on cycle hours", "driver", driverID, "available", rc.Available.String())
			}
			return nil
		})
	}
	_ = g.Wait()
	m.lggr.Debugw("recaps refreshed", "drivers", len(drivers), "errors", len(errs))
	return errors.Join(errs...)
}

func (m *Manager) countPlan(result string) {
	if m.metrics != nil {
		m.metrics.Plans.WithLabelValues(result).Inc()
	}
}

func (m *Manager) countRefresh(result string) {
	if m.metrics != nil {
		m.metrics.RecapRefreshes.WithLabelValues(result).Inc()
	}
}

func (m *Manager) countDBError(op string, err error) {
	if m.metrics != nil && !errors.Is(err, db.ErrNotFound) {
		m.metrics.DBErrors.WithLabelValues(op).Inc()
	}
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", hos.ErrInvalidRequest, err)
	}
	return nil
}

func decodeTripRef(data []byte, ref *bus.TripRef) error {
	if err := decode(data, ref); err != nil {
		return err
	}
	ref.TripID = strings.TrimSpace(ref.TripID)
	if ref.TripID == "" {
		return fmt.Errorf("%w: trip_id is required", hos.ErrInvalidRequest)
	}
	return nil
}

func errorReply(err error) bus.ErrorReply {
	code := bus.CodeInternal
	switch {
	case errors.Is(err, hos.ErrInvalidRequest), errors.Is(err, hos.ErrInvalidRules):
		code = bus.CodeInvalidRequest
	case errors.Is(err, db.ErrNotFound):
		code = bus.CodeNotFound
	case errors.Is(err, ErrTripBusy):
		code = bus.CodeBusy
	}
	return bus.ErrorReply{Error: err.Error(), Code: code}
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eld-planner/internal/bus"
	"eld-planner/internal/db"
	"eld-planner/internal/hos"
)

type storedTrip struct {
	plan  *hos.Plan
	req   hos.Request
	saved int
}

type fakeStore struct {
	mu        sync.Mutex
	trips     map[string]storedTrip
	history   map[string][]hos.Event // driver -> events not tied to a stored trip
	failFetch map[string]error       // driver -> FetchDutyEvents error
	saveErr   error
	listErr   error
	saves     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trips:     make(map[string]storedTrip),
		history:   make(map[string][]hos.Event),
		failFetch: make(map[string]error),
	}
}

func (s *fakeStore) SavePlan(_ context.Context, plan *hos.Plan, req hos.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.trips[plan.TripID] = storedTrip{plan: plan, req: req, saved: s.saves}
	return nil
}

func (s *fakeStore) FetchPlan(_ context.Context, tripID string) (*db.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.trips[tripID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &db.Trip{
		Plan:            st.plan,
		CurrentLocation: st.req.CurrentLocation,
		PickupLocation:  st.req.PickupLocation,
		DropoffLocation: st.req.DropoffLocation,
		CycleUsed:       st.req.CycleUsed,
	}, nil
}

func (s *fakeStore) DeletePlan(_ context.Context, tripID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[tripID]; !ok {
		return db.ErrNotFound
	}
	delete(s.trips, tripID)
	return nil
}

func (s *fakeStore) ListTrips(_ context.Context, driverID string, limit int) ([]db.TripSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var rows []storedTrip
	for _, st := range s.trips {
		if driverID == "" || st.plan.DriverID == driverID {
			rows = append(rows, st)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].saved > rows[j].saved })
	if limit <= 0 {
		limit = db.DefaultListLimit
	}
	var out []db.TripSummary
	for _, st := range rows[:min(limit, len(rows))] {
		out = append(out, db.TripSummary{
			TripID:          st.plan.TripID,
			DriverID:        st.plan.DriverID,
			CurrentLocation: st.req.CurrentLocation,
			PickupLocation:  st.req.PickupLocation,
			DropoffLocation: st.req.DropoffLocation,
			CycleUsed:       st.req.CycleUsed,
			Start:           st.plan.Start,
			End:             st.plan.End,
			TotalMiles:      st.plan.TotalMiles,
			TotalDriving:    st.plan.TotalDriving,
			Restarts:        st.plan.Restarts,
			Stops:           len(st.plan.Stops),
		})
	}
	return out, nil
}

func (s *fakeStore) CountTrips(_ context.Context, driverID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.trips {
		if st.plan.DriverID == driverID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) FetchDutyEvents(_ context.Context, driverID string, since, until time.Time, excludeTripID string) ([]hos.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFetch[driverID]; err != nil {
		return nil, err
	}
	all := append([]hos.Event(nil), s.history[driverID]...)
	for id, st := range s.trips {
		if st.plan.DriverID == driverID && id != excludeTripID {
			all = append(all, st.plan.Events...)
		}
	}
	var out []hos.Event
	for _, e := range all {
		if e.End.After(since) && e.Start.Before(until) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *fakeStore) ListActiveDrivers(_ context.Context, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for d, events := range s.history {
		for _, e := range events {
			if e.End.After(since) {
				seen[d] = true
			}
		}
	}
	for d := range s.failFetch {
		seen[d] = true
	}
	var out []string
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

type published struct {
	subject string
	v       any
}

type fakeSub struct {
	drained bool
}

func (s *fakeSub) Drain() error       { s.drained = true; return nil }
func (s *fakeSub) Unsubscribe() error { return nil }

type fakeBus struct {
	mu        sync.Mutex
	handlers  map[string]bus.HandlerFunc
	subs      []*fakeSub
	published []published
	pubErr    error
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]bus.HandlerFunc)}
}

func (b *fakeBus) Publish(subject string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{subject: subject, v: v})
	return b.pubErr
}

func (b *fakeBus) Serve(subject, _ string, h bus.HandlerFunc) (bus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = h
	sub := &fakeSub{}
	b.subs = append(b.subs, sub)
	return sub, nil
}

func (b *fakeBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, p := range b.published {
		out[i] = p.subject
	}
	return out
}

// request runs the handler for subject like a NATS request would and decodes
// the JSON reply into out.
func (b *fakeBus) request(t *testing.T, subject string, v, out any) error {
	t.Helper()
	b.mu.Lock()
	h := b.handlers[subject]
	b.mu.Unlock()
	require.NotNil(t, h, "no handler for %s", subject)

	var data []byte
	switch raw := v.(type) {
	case []byte:
		data = raw
	default:
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}

	replies := make(chan []byte, 1)
	h(data, func(r any) error {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		replies <- b
		return nil
	})
	select {
	case reply := <-replies:
		return bus.DecodeReply(reply, out)
	case <-time.After(5 * time.Second):
		return errors.New("timed out waiting for reply")
	}
}

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"

	"eld-planner/internal/logger"
)

type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Subscription is the part of *nats.Subscription the service uses.
type Subscription interface {
	Drain() error
	Unsubscribe() error
}

// HandlerFunc receives a request payload and a callback that sends the reply.
// respond may be called from another goroutine after the handler returns.
type HandlerFunc func(data []byte, respond func(v any) error)

type Options struct {
	Name        string
	Attempts    uint
	LogSubjects bool
	Metrics     Metrics
	Logger      logger.Logger
}

type Conn struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     Metrics
	lggr        logger.Logger
}

// Connect dials NATS, retrying with backoff while the server is unreachable.
func Connect(ctx context.Context, url string, o Options) (*Conn, error) {
	if o.Name == "" {
		o.Name = "eld-planner"
	}
	if o.Attempts == 0 {
		o.Attempts = 1
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	lggr := o.Logger.Named("nats")
	m := o.Metrics

	opts := []nats.Option{
		nats.Name(o.Name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			lggr.Warnw("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			lggr.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			lggr.Infof("nats closed")
		}),
	}

	var nc *nats.Conn
	err := retry.Do(func() error {
		var err error
		nc, err = nats.Connect(url, opts...)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(o.Attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			lggr.Warnf("nats connect attempt %d/%d: %v", attempt+1, o.Attempts, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &Conn{nc: nc, logSubjects: o.LogSubjects, metrics: m, lggr: lggr}, nil
}

func (c *Conn) Connected() bool { return c.nc != nil && c.nc.IsConnected() }

func (c *Conn) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
		c.nc.Close()
	}
}

// Publish sends v as JSON.
func (c *Conn) Publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.logSubjects {
		c.lggr.Debugf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = c.nc.Publish(subject, b)
	c.observe(start, err)
	return err
}

// Serve answers requests on subject; members of the same queue group share the load.
func (c *Conn) Serve(subject, queue string, h HandlerFunc) (Subscription, error) {
	sub, err := c.nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if c.logSubjects {
			c.lggr.Debugf("nats request subject=%s reply=%s", msg.Subject, msg.Reply)
		}
		h(msg.Data, func(v any) error { return c.respond(msg, v) })
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (c *Conn) respond(msg *nats.Msg, v any) error {
	if msg.Reply == "" {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	start := time.Now()
	err = msg.Respond(b)
	c.observe(start, err)
	return err
}

func (c *Conn) observe(start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.PublishObserve(time.Since(start))
	if err != nil {
		c.metrics.NATSPublishErrInc()
	} else {
		c.metrics.NATSPublishedInc()
	}
}

// Request sends v and decodes the reply into out. Used by the CLI and tests.
func (c *Conn) Request(ctx context.Context, subject string, v, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg, err := c.nc.RequestWithContext(ctx, subject, b)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	return DecodeReply(msg.Data, out)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

// Subjects builds the service's subject names under a prefix.
type Subjects struct {
	Prefix string
}

func (s Subjects) join(tokens ...string) string {
	return s.Prefix + "." + strings.Join(tokens, ".")
}

func (s Subjects) PlanRequest() string  { return s.join("plan", "request") }
func (s Subjects) TripGet() string      { return s.join("trip", "get") }
func (s Subjects) TripDelete() string   { return s.join("trip", "delete") }
func (s Subjects) TripList() string     { return s.join("trip", "list") }
func (s Subjects) RecapRequest() string { return s.join("recap", "request") }

func (s Subjects) TripPlanned(driverID, tripID string) string {
	return s.join("trips", subjectToken(driverID), subjectToken(tripID), "planned")
}

// DailyLog is keyed by the log's calendar date.
func (s Subjects) DailyLog(driverID string, date time.Time) string {
	return s.join("logs", subjectToken(driverID), date.Format(time.DateOnly))
}

func (s Subjects) DriverRecap(driverID string) string {
	return s.join("drivers", subjectToken(driverID), "recap")
}

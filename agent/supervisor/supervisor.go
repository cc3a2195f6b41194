package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/pool"
)

const instrumentationName = "github.com/BaSui01/voiceflow/agent/supervisor"

// DefaultTimeout bounds a fan-out when the caller passes no timeout.
const DefaultTimeout = 2 * time.Second

// Advisory outcomes recorded per advisor.
const (
	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeUnknown  = "unknown_agent"
	OutcomeRejected = "rejected"
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPool runs advisors on p. Without a pool each advisor gets its own goroutine.
func WithPool(p *pool.Pool) Option {
	return func(s *Supervisor) { s.pool = p }
}

// WithFactory replaces NewRuleAdvisor.
func WithFactory(f AdvisorFactory) Option {
	return func(s *Supervisor) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithDefaultTimeout sets the deadline used when callers pass none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = c }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Supervisor) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Supervisor) {
		if mp != nil {
			s.meter = mp.Meter(instrumentationName)
		}
	}
}

// Supervisor fans advisory evaluations out and joins them on one deadline.
type Supervisor struct {
	pool           *pool.Pool
	factory        AdvisorFactory
	defaultTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Collector
	tracer         trace.Tracer
	meter          metric.Meter

	advisorDuration metric.Float64Histogram
	dropped         metric.Int64Counter
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		factory:        NewRuleAdvisor,
		defaultTimeout: DefaultTimeout,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer(instrumentationName),
		meter:          otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "supervisor"))

	if err := s.initInstruments(); err != nil {
		s.logger.Warn("otel instruments unavailable, using noop meter", zap.Error(err))
		s.meter = noop.NewMeterProvider().Meter(instrumentationName)
		_ = s.initInstruments()
	}
	return s
}

func (s *Supervisor) initInstruments() error {
	var err error
	s.advisorDuration, err = s.meter.Float64Histogram("supervisor.advisor.duration",
		metric.WithDescription("Advisor evaluation time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5))
	if err != nil {
		return err
	}
	s.dropped, err = s.meter.Int64Counter("supervisor.advice.dropped",
		metric.WithDescription("Advisors dropped from a fan-out"),
		metric.WithUnit("{advisor}"))
	return err
}

type job struct {
	idx     int
	advisor Advisor
}

type result struct {
	idx    int
	advice Advice
	err    error
	late   bool
}

// Recommendation bundles a fan-out with its synthesis.
type Recommendation struct {
	Advice         []Advice `json:"advice"`
	Synthesized    *Advice  `json:"synthesized,omitempty"`
	PreserveFields []string `json:"preserve_fields,omitempty"`
}

// Recommend runs GetAdvisoryRecommendations and synthesizes the result.
func (s *Supervisor) Recommend(ctx context.Context, sess *session.Registry, names []string, c Context, timeout time.Duration) Recommendation {
	advice := s.GetAdvisoryRecommendations(ctx, sess, names, c, timeout)
	rec := Recommendation{Advice: advice, PreserveFields: ContextForHandoff(advice)}
	if best, ok := Synthesize(advice); ok {
		rec.Synthesized = &best
	}
	return rec
}

// GetAdvisoryRecommendations evaluates one advisor per name concurrently.
// Names are resolved through the session; unknown names, errors, panics and
// evaluations still running at the deadline are dropped. Results keep the
// order of names.
func (s *Supervisor) GetAdvisoryRecommendations(ctx context.Context, sess *session.Registry, names []string, c Context, timeout time.Duration) []Advice {
	ctx, span := s.tracer.Start(ctx, "supervisor.advise", trace.WithAttributes(
		attribute.String("session.id", sess.SessionID()),
		attribute.Int("supervisor.advisors", len(names)),
	))
	defer span.End()

	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	jobs := s.prepare(ctx, sess, names)

	results := make(chan result, len(jobs))
	waiting := make([]bool, len(names))
	pending := 0
	for _, j := range jobs {
		if err := s.dispatch(ctx, j, c, results); err != nil {
			s.drop(ctx, names[j.idx], OutcomeRejected, err)
			continue
		}
		waiting[j.idx] = true
		pending++
	}

	collected := make([]*Advice, len(names))
collect:
	for pending > 0 {
		select {
		case r := <-results:
			pending--
			waiting[r.idx] = false
			name := names[r.idx]
			switch {
			case r.late:
				s.drop(ctx, name, OutcomeTimeout, r.err)
			case r.err != nil:
				s.drop(ctx, name, OutcomeError, r.err)
			default:
				advice := r.advice
				collected[r.idx] = &advice
				s.metrics.RecordAdvisory(name, OutcomeOK)
			}
		case <-ctx.Done():
			break collect
		}
	}

	out := make([]Advice, 0, len(names))
	for i, a := range collected {
		if a != nil {
			out = append(out, *a)
			continue
		}
		if waiting[i] {
			s.drop(ctx, names[i], OutcomeTimeout, ctx.Err())
		}
	}

	partial := len(out) < len(names)
	s.metrics.RecordAdvisoryFanout(time.Since(start), partial)
	span.SetAttributes(
		attribute.Int("supervisor.returned", len(out)),
		attribute.Bool("supervisor.partial", partial),
	)
	return out
}

// prepare resolves names to advisors on the caller's goroutine, so advisors
// never touch live session state.
func (s *Supervisor) prepare(ctx context.Context, sess *session.Registry, names []string) []job {
	jobs := make([]job, 0, len(names))
	for i, name := range names {
		def, err := sess.ResolveEffective(name)
		if err != nil {
			s.drop(ctx, name, OutcomeUnknown, err)
			continue
		}
		advisor, err := s.factory(def)
		if err != nil {
			s.drop(ctx, name, OutcomeError, err)
			continue
		}
		jobs = append(jobs, job{idx: i, advisor: advisor})
	}
	return jobs
}

func (s *Supervisor) dispatch(ctx context.Context, j job, c Context, results chan<- result) error {
	if s.pool == nil {
		go func() { results <- s.evaluate(ctx, j, c) }()
		return nil
	}
	// The pool detaches task contexts from cancellation; the fan-out
	// deadline travels through ctx instead.
	return s.pool.Submit(ctx, "advisor:"+j.advisor.Name(), func(context.Context) error {
		results <- s.evaluate(ctx, j, c)
		return nil
	})
}

func (s *Supervisor) evaluate(ctx context.Context, j job, c Context) (r result) {
	r.idx = j.idx
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("advisor %s panicked: %v", j.advisor.Name(), p)
		}
		r.late = ctx.Err() != nil
		outcome := OutcomeOK
		switch {
		case r.late:
			outcome = OutcomeTimeout
		case r.err != nil:
			outcome = OutcomeError
		}
		s.advisorDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("advisor", j.advisor.Name()),
			attribute.String("outcome", outcome),
		))
	}()

	advice, err := j.advisor.Advise(ctx, c)
	if err != nil {
		r.err = err
		return r
	}
	if advice.Agent == "" {
		advice.Agent = j.advisor.Name()
	}
	r.advice = advice
	return r
}

func (s *Supervisor) drop(ctx context.Context, name, outcome string, err error) {
	s.metrics.RecordAdvisory(name, outcome)
	s.dropped.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	fields := []zap.Field{zap.String("advisor", name), zap.String("outcome", outcome)}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Warn("advisor dropped", fields...)
}

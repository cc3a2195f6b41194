package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/pool"
	"github.com/BaSui01/voiceflow/testutil/fixtures"
)

// stubAdvisor answers after delay, ignoring cancellation when stubborn.
type stubAdvisor struct {
	name     string
	delay    time.Duration
	urgency  Urgency
	err      error
	panics   bool
	stubborn bool
}

func (s *stubAdvisor) Name() string { return s.name }

func (s *stubAdvisor) Advise(ctx context.Context, _ Context) (Advice, error) {
	if s.panics {
		panic("advisor exploded")
	}
	if s.delay > 0 {
		if s.stubborn {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return Advice{}, ctx.Err()
			}
		}
	}
	if s.err != nil {
		return Advice{}, s.err
	}
	return Advice{Action: ActionContinue, Urgency: s.urgency}, nil
}

func stubFactory(stubs ...*stubAdvisor) AdvisorFactory {
	byName := make(map[string]*stubAdvisor, len(stubs))
	for _, s := range stubs {
		byName[s.name] = s
	}
	return func(def *definition.Definition) (Advisor, error) {
		if s, ok := byName[def.Name]; ok {
			return s, nil
		}
		return nil, errors.New("no stub for " + def.Name)
	}
}

func newAdvisorSession(t *testing.T, names ...string) *session.Registry {
	t.Helper()
	sess := session.New("sess-advice", fixtures.Registry())
	for _, name := range names {
		require.NoError(t, sess.RegisterCustomAgent(&definition.Definition{Name: name, PromptTemplate: "advise"}))
	}
	return sess
}

func TestGetAdvisoryRecommendations_SlowAdvisorDropped(t *testing.T) {
	sess := newAdvisorSession(t, "Slow", "Fast")
	sup := New(WithFactory(stubFactory(
		&stubAdvisor{name: "Slow", delay: time.Second, urgency: UrgencyUrgent, stubborn: true},
		&stubAdvisor{name: "Fast", urgency: UrgencyLow},
	)))

	start := time.Now()
	advice := sup.GetAdvisoryRecommendations(context.Background(), sess, []string{"Slow", "Fast"}, Context{}, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Len(t, advice, 1)
	assert.Equal(t, "Fast", advice[0].Agent)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestGetAdvisoryRecommendations_OrderAndDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	p := pool.New(pool.Config{Workers: 4, QueueSize: 8})
	t.Cleanup(p.Close)

	sess := newAdvisorSession(t, "A", "B", "Broken", "Panicky", "C")
	sup := New(
		WithPool(p),
		WithMetrics(collector),
		WithFactory(stubFactory(
			&stubAdvisor{name: "A", delay: 30 * time.Millisecond, urgency: UrgencyMedium},
			&stubAdvisor{name: "B", urgency: UrgencyHigh},
			&stubAdvisor{name: "Broken", err: errors.New("model unavailable")},
			&stubAdvisor{name: "Panicky", panics: true},
			&stubAdvisor{name: "C", delay: 10 * time.Millisecond, urgency: UrgencyLow},
		)),
	)

	names := []string{"A", "B", "Nobody", "Broken", "Panicky", "C"}
	advice := sup.GetAdvisoryRecommendations(context.Background(), sess, names, Context{}, time.Second)

	require.Len(t, advice, 3)
	assert.Equal(t, "A", advice[0].Agent)
	assert.Equal(t, "B", advice[1].Agent)
	assert.Equal(t, "C", advice[2].Agent)

	// One series per (advisor, outcome): three ok, one unknown, two errors.
	assert.Equal(t, 6, testutil.CollectAndCount(reg, "test_advisory_results_total"))
}

func TestGetAdvisoryRecommendations_DefaultRuleAdvisor(t *testing.T) {
	sess := session.New("sess-advice", fixtures.Registry())
	sup := New()

	rec := sup.Recommend(context.Background(), sess, []string{fixtures.Supervisor}, Context{QueueDepth: 80}, 0)
	require.Len(t, rec.Advice, 1)
	require.NotNil(t, rec.Synthesized)
	assert.Equal(t, ActionSuggestSwitch, rec.Synthesized.Action)
	assert.Equal(t, "sms", rec.Synthesized.RecommendedChannel)
	assert.Equal(t, []string{"caller_name", "account_id"}, rec.PreserveFields)
}

func TestGetAdvisoryRecommendations_SessionOverridesReachAdvisor(t *testing.T) {
	sess := session.New("sess-advice", fixtures.Registry())
	require.NoError(t, sess.MergeTemplateVariables(fixtures.Supervisor, map[string]any{VarPreferredChannel: "email"}, session.SourceAPI))

	advice := New().GetAdvisoryRecommendations(context.Background(), sess, []string{fixtures.Supervisor}, Context{WaitSeconds: 500}, time.Second)
	require.Len(t, advice, 1)
	assert.Equal(t, "email", advice[0].RecommendedChannel)
}

func TestRecommend_Empty(t *testing.T) {
	sess := newAdvisorSession(t)
	rec := New().Recommend(context.Background(), sess, nil, Context{}, time.Second)
	assert.Empty(t, rec.Advice)
	assert.Nil(t, rec.Synthesized)
	assert.Empty(t, rec.PreserveFields)
}

func TestGetAdvisoryRecommendations_OTelInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	sess := newAdvisorSession(t, "Fast", "Slow")
	sup := New(
		WithMeterProvider(mp),
		WithFactory(stubFactory(
			&stubAdvisor{name: "Fast", urgency: UrgencyLow},
			&stubAdvisor{name: "Slow", delay: time.Second, urgency: UrgencyLow},
		)),
	)
	advice := sup.GetAdvisoryRecommendations(context.Background(), sess, []string{"Fast", "Slow"}, Context{}, 20*time.Millisecond)
	require.Len(t, advice, 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["supervisor.advice.dropped"])
	assert.True(t, names["supervisor.advisor.duration"])
}

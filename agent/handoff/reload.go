package handoff

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// ReloadableScenario serves a scenario file that may change while sessions
// are running. A failed reload keeps the previous scenario.
type ReloadableScenario struct {
	path    string
	current atomic.Pointer[Scenario]
	logger  *zap.Logger
}

// NewReloadableScenario loads path once. The initial load must succeed.
func NewReloadableScenario(path string, logger *zap.Logger) (*ReloadableScenario, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	r := &ReloadableScenario{
		path:   path,
		logger: logger.With(zap.String("component", "scenario"), zap.String("path", path)),
	}
	r.current.Store(s)
	return r, nil
}

// Path returns the scenario file path.
func (r *ReloadableScenario) Path() string { return r.path }

// Current returns the active scenario.
func (r *ReloadableScenario) Current() *Scenario { return r.current.Load() }

// Reload re-reads the file and swaps it in when valid.
func (r *ReloadableScenario) Reload() error {
	s, err := LoadScenario(r.path)
	if err != nil {
		r.logger.Error("scenario reload failed, keeping previous", zap.Error(err))
		return err
	}
	r.current.Store(s)
	r.logger.Info("scenario reloaded",
		zap.String("name", s.Name),
		zap.Int("edges", len(s.Edges)),
	)
	return nil
}

// HandoffConfig implements ScenarioProvider.
func (r *ReloadableScenario) HandoffConfig(source, target string) Config {
	return r.Current().HandoffConfig(source, target)
}

// GenericHandoffTool implements ScenarioProvider.
func (r *ReloadableScenario) GenericHandoffTool(source string) (string, bool) {
	return r.Current().GenericHandoffTool(source)
}

// AllowsHandoff implements ScenarioProvider.
func (r *ReloadableScenario) AllowsHandoff(source, target string) bool {
	return r.Current().AllowsHandoff(source, target)
}

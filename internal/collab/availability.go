package collab

import (
	"context"

	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
)

// Availability records which sync features may run. It is decided once at
// startup; components consult it instead of inspecting store errors.
type Availability struct {
	ChangeLog bool `json:"changeLog"`
	Presence  bool `json:"presence"`
}

// ProbeFunc checks that a backing store is usable (schema present, reachable).
type ProbeFunc func(ctx context.Context) error

// ResolveAvailability enables a feature only when configuration allows it and
// its store probe passes. A nil probe counts as passing.
func ResolveAvailability(ctx context.Context, features configs.FeaturesConfig, changeLogProbe, presenceProbe ProbeFunc, logger logging.Logger) Availability {
	return Availability{
		ChangeLog: resolve(ctx, "change_log", features.ChangeLog, changeLogProbe, logger),
		Presence:  resolve(ctx, "presence", features.Presence, presenceProbe, logger),
	}
}

func resolve(ctx context.Context, feature string, enabled bool, probe ProbeFunc, logger logging.Logger) bool {
	if !enabled {
		logger.Info(logging.General, logging.Availability, "feature disabled by configuration", map[logging.ExtraKey]any{
			logging.Backend: feature,
		})
		return false
	}
	if probe == nil {
		return true
	}
	if err := probe(ctx); err != nil {
		logger.Warn(logging.General, logging.Availability, "feature disabled: backing store unavailable", map[logging.ExtraKey]any{
			logging.Backend:      feature,
			logging.ErrorMessage: err.Error(),
		})
		return false
	}
	return true
}

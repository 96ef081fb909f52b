package hal

import (
	"fmt"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
)

// VersionFromConfig converts a configured HAL version.
func VersionFromConfig(c config.HALVersionConfig) (effect.HalVersion, error) {
	t, err := effect.ParseHalType(c.Type)
	if err != nil {
		return effect.HalVersion{}, fmt.Errorf("hal version: %w", err)
	}
	return effect.HalVersion{Type: t, Major: c.Major, Minor: c.Minor}, nil
}

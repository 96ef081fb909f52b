package effect

import "fmt"

// Gate decides whether a descriptor may be instantiated as a device effect.
// It is a pure value: Check has no side effects and keeps no state.
type Gate struct {
	// MinVersion is the oldest acceptable effect HAL.
	MinVersion HalVersion
}

// DefaultGate uses MinDeviceEffectHalVersion.
func DefaultGate() Gate {
	return Gate{MinVersion: MinDeviceEffectHalVersion}
}

// Check returns ErrIncompatibleEffect if the descriptor is neither a pre nor a
// post processing effect, or if halVersion sorts before the gate's minimum.
func (g Gate) Check(desc Descriptor, halVersion HalVersion) error {
	switch desc.Classification() {
	case FlagTypePreProc, FlagTypePostProc:
	default:
		return fmt.Errorf("%w: %q is a %s effect, not pre or post processing",
			ErrIncompatibleEffect, desc.Name, ClassificationName(desc.Classification()))
	}

	if halVersion.Less(g.MinVersion) {
		return fmt.Errorf("%w: effect HAL %s is older than required %s",
			ErrIncompatibleEffect, halVersion, g.MinVersion)
	}

	return nil
}

// CheckCompatibility runs the default gate.
func CheckCompatibility(desc Descriptor, halVersion HalVersion) error {
	return DefaultGate().Check(desc, halVersion)
}

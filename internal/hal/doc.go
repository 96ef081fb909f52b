// Package hal is the software effect HAL: a catalog of effect descriptors
// and an effect.EffectFactory that instantiates them.
//
// The software HAL does not process audio. Each SoftwareEffect tracks the
// routes it is attached to and whether it is enabled, which is what the
// device effect registry drives and what the API and tests observe.
//
//	config.effects.library ──▶ Catalog ──▶ SoftwareFactory ──▶ SoftwareEffect
//	                                            ▲
//	                           effect.Registry ─┘ CreateEffect / VersionInfo
package hal

// Package vnet implements the simulated network: link-delay
// distributions, bootstrap topologies, and the mediator that routes
// messages between peers by scheduling delivery events.
package vnet

import (
	"fmt"
	"math/rand"

	"github.com/das67333/ipfs-simulator/pkg/config"
)

// DelayDistribution samples non-negative link delays. Implementations
// are closed variants chosen by configuration.
type DelayDistribution interface {
	// Sample draws one delay from the simulation's random stream.
	Sample(rng *rand.Rand) float64
}

// ConstantDelay returns the same delay for every link.
type ConstantDelay struct {
	Mean float64
}

// Sample implements DelayDistribution.
func (d ConstantDelay) Sample(_ *rand.Rand) float64 {
	return d.Mean
}

// UniformDelay draws uniformly from [Min, Max].
type UniformDelay struct {
	Min, Max float64
}

// Sample implements DelayDistribution.
func (d UniformDelay) Sample(rng *rand.Rand) float64 {
	return d.Min + rng.Float64()*(d.Max-d.Min)
}

// PositiveNormalDelay draws from a normal distribution and reflects the
// negative tail, so samples stay non-negative.
type PositiveNormalDelay struct {
	Mean, StdDev float64
}

// Sample implements DelayDistribution.
func (d PositiveNormalDelay) Sample(rng *rand.Rand) float64 {
	v := rng.NormFloat64()*d.StdDev + d.Mean
	if v < 0 {
		return -v
	}
	return v
}

// DelayFromConfig builds the configured delay distribution. The config
// has already been validated, so parameter errors here indicate a bug.
func DelayFromConfig(cfg *config.Config) (DelayDistribution, error) {
	switch cfg.DelayDistribution {
	case config.DelayConstant:
		return ConstantDelay{Mean: cfg.DelayMean}, nil
	case config.DelayUniform:
		return UniformDelay{Min: cfg.DelayMin, Max: cfg.DelayMax}, nil
	case config.DelayPositiveNormal:
		return PositiveNormalDelay{Mean: cfg.DelayMean, StdDev: cfg.DelayStdDev}, nil
	default:
		return nil, fmt.Errorf("unknown delay distribution %q", cfg.DelayDistribution)
	}
}

// Package domain holds the Ghost Trust Engine's core data model: trust
// phases, trust events, training blocks, and the audit artifacts the rest of
// the engine produces. Nothing in this package performs I/O; it is pure data
// plus the small amount of logic (ordering, capability lookup) that has no
// sensible home anywhere else.
package domain

import "fmt"

// Capability is an autonomous action the Engine may be permitted to perform.
type Capability string

const (
	CapabilityObserve           Capability = "observe"
	CapabilityProposeBlocks     Capability = "propose_blocks"
	CapabilityAutoCreateBlocks  Capability = "auto_create_blocks"
	CapabilityAutoModifyBlocks  Capability = "auto_modify_blocks"
	CapabilityAutonomousPlanning Capability = "autonomous_planning"
)

// TrustPhase is one of the five totally-ordered autonomy levels a user has
// granted the Engine. Phases are ordered Observer < Scheduler < AutoScheduler
// < Transformer < FullGhost.
type TrustPhase int

const (
	PhaseObserver TrustPhase = iota
	PhaseScheduler
	PhaseAutoScheduler
	PhaseTransformer
	PhaseFullGhost

	phaseCount
)

func (p TrustPhase) String() string {
	switch p {
	case PhaseObserver:
		return "Observer"
	case PhaseScheduler:
		return "Scheduler"
	case PhaseAutoScheduler:
		return "AutoScheduler"
	case PhaseTransformer:
		return "Transformer"
	case PhaseFullGhost:
		return "FullGhost"
	default:
		return fmt.Sprintf("TrustPhase(%d)", int(p))
	}
}

// Threshold is the lower bound of trustScore required to remain in this
// phase.
func (p TrustPhase) Threshold() float64 {
	return phaseDefs[p].threshold
}

// Capabilities returns the set of capabilities granted at this phase.
// Capabilities are cumulative: a higher phase always grants a superset of a
// lower phase's capabilities (testable property 3 in spec.md §8).
func (p TrustPhase) Capabilities() map[Capability]struct{} {
	out := make(map[Capability]struct{}, len(phaseDefs[p].capabilities))
	for i := PhaseObserver; i <= p; i++ {
		for _, c := range phaseDefs[i].ownCapabilities {
			out[c] = struct{}{}
		}
	}
	return out
}

// Next returns the next-higher phase and true, or the zero phase and false
// if p is already the highest phase.
func (p TrustPhase) Next() (TrustPhase, bool) {
	if p >= PhaseFullGhost {
		return 0, false
	}
	return p + 1, true
}

// Previous returns the next-lower phase and true, or the zero phase and
// false if p is already the lowest phase.
func (p TrustPhase) Previous() (TrustPhase, bool) {
	if p <= PhaseObserver {
		return 0, false
	}
	return p - 1, true
}

// IsValid reports whether p is one of the five defined phases.
func (p TrustPhase) IsValid() bool {
	return p >= PhaseObserver && p < phaseCount
}

type phaseDef struct {
	threshold       float64
	ownCapabilities []Capability
	capabilities    []Capability // cumulative, computed in init()
}

var phaseDefs = map[TrustPhase]phaseDef{
	PhaseObserver: {
		threshold:       0,
		ownCapabilities: []Capability{CapabilityObserve},
	},
	PhaseScheduler: {
		threshold:       30,
		ownCapabilities: []Capability{CapabilityProposeBlocks},
	},
	PhaseAutoScheduler: {
		threshold:       55,
		ownCapabilities: []Capability{CapabilityAutoCreateBlocks},
	},
	PhaseTransformer: {
		threshold:       75,
		ownCapabilities: []Capability{CapabilityAutoModifyBlocks},
	},
	PhaseFullGhost: {
		threshold:       90,
		ownCapabilities: []Capability{CapabilityAutonomousPlanning},
	},
}

func init() {
	cumulative := make([]Capability, 0, 8)
	for p := PhaseObserver; p < phaseCount; p++ {
		d := phaseDefs[p]
		cumulative = append(cumulative, d.ownCapabilities...)
		d.capabilities = append([]Capability(nil), cumulative...)
		phaseDefs[p] = d
	}
}

// AllPhases lists every phase in ascending order.
func AllPhases() []TrustPhase {
	return []TrustPhase{PhaseObserver, PhaseScheduler, PhaseAutoScheduler, PhaseTransformer, PhaseFullGhost}
}

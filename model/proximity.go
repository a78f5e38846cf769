package model

import "github.com/binarydiff/matcher/topology"

// GetProximityMD returns the proximity MD-index of call-graph edge e,
// computing and memoizing it on first use. The computation reduces the
// graph to the immediate vicinity of e, so it is resilient to non-local
// changes elsewhere in the call graph — but it is potentially expensive on
// dense neighborhoods, so it must never be called eagerly, only when
// re-scoring a specific candidate match.
func (g *CallGraph) GetProximityMD(e uint32) float64 {
	if g.ProximityMDUnset(e) {
		g.SetProximityMD(e, topology.ProximityMD(&g.base, e))
	}
	return g.ProximityMD(e)
}

package jobs

// PhaseRange maps one stage of a multi-phase work function onto a sub-range
// of the global 0-100 progress scale.
type PhaseRange struct {
	Start int
	End   int
}

// PhaseMap assigns each named phase its slice of the overall progress bar.
// Work functions report per-phase completion and the map translates that into
// the single monotonic percentage observers see.
type PhaseMap map[string]PhaseRange

// Percent converts done-of-total units within the named phase into a global
// percentage. Unknown phases and non-positive totals resolve to the phase
// start (or zero), so a sloppy caller can never push progress backwards past
// the envelope's own monotonic clamp.
func (m PhaseMap) Percent(phase string, done, total int) int {
	r, ok := m[phase]
	if !ok {
		return 0
	}
	if total <= 0 || done <= 0 {
		return r.Start
	}
	if done > total {
		done = total
	}
	return r.Start + (r.End-r.Start)*done/total
}

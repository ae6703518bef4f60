package engine

import "github.com/repcrec/repcrec/internal/types"

// version is one committed value of a variable, stamped with the commit
// time that made it visible.
type version struct {
	commitTime types.Time
	value      int
}

// variable is a single copy's append-only version history. History is never
// pruned: a snapshot read may need to walk arbitrarily far back to find a
// version that predates its start time or a site's last failure.
type variable struct {
	id      types.VarID
	history []version // ascending by commitTime; history[0] is the t=0 initial value
}

// newVariable seeds a copy with its initial value (10x the variable's
// index) as of time zero.
func newVariable(id types.VarID) *variable {
	return &variable{
		id:      id,
		history: []version{{commitTime: 0, value: int(id) * 10}},
	}
}

// versionAt returns the newest version committed at or before t.
func (v *variable) versionAt(t types.Time) (version, bool) {
	best := -1
	for i, ver := range v.history {
		if ver.commitTime <= t {
			best = i
		} else {
			break
		}
	}
	if best == -1 {
		return version{}, false
	}
	return v.history[best], true
}

// latest returns the most recently committed version.
func (v *variable) latest() version {
	return v.history[len(v.history)-1]
}

// commit appends a new version, becoming the copy's latest value.
func (v *variable) commit(t types.Time, value int) {
	v.history = append(v.history, version{commitTime: t, value: value})
}

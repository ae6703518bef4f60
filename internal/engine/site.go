package engine

import (
	errs "github.com/repcrec/repcrec/internal/errors"
	"github.com/repcrec/repcrec/internal/types"
)

// Site is one replica: an independent version store plus an uncommitted
// write buffer keyed by the transaction that staged it. The whole engine is
// single-threaded and synchronous, so Site carries no lock.
type Site struct {
	id   types.SiteID
	vars map[types.VarID]*variable

	available       bool
	lastFailTime    types.Time
	lastRecoverTime types.Time

	buffer map[types.TranID]map[types.VarID]int
}

// NewSite builds a site stocked with the variables it is responsible for:
// every replicated (even-indexed) variable, plus any odd-indexed variable
// whose home site (1 + i mod siteNum) is this one.
func NewSite(id types.SiteID, siteNum, varNum int) *Site {
	s := &Site{
		id:              id,
		vars:            make(map[types.VarID]*variable),
		available:       true,
		lastFailTime:    types.NeverFailed,
		lastRecoverTime: types.NeverFailed,
		buffer:          make(map[types.TranID]map[types.VarID]int),
	}
	for i := 1; i <= varNum; i++ {
		v := types.VarID(i)
		if replicated(v) || homeSite(v, siteNum) == id {
			s.vars[v] = newVariable(v)
		}
	}
	return s
}

func (s *Site) ID() types.SiteID      { return s.id }
func (s *Site) Available() bool       { return s.available }
func (s *Site) LastFailTime() types.Time { return s.lastFailTime }
func (s *Site) HasVariable(v types.VarID) bool {
	_, ok := s.vars[v]
	return ok
}

// Read resolves a snapshot read of v as of startTime against this site's
// version history. It returns one of three outcomes:
//
//   - a value and nil error: safe to serve.
//   - a value and ErrStaleButKnownValue: the reader's snapshot predates the
//     site's last failure and the site is currently down — the value is
//     known but not servable until the site comes back.
//   - a zero value and ErrNotHere / ErrNoVisibleVersion: hard misses the
//     coordinator's probing loop treats as "try another site" or "no
//     candidate exists anywhere".
func (s *Site) Read(v types.VarID, startTime types.Time) (int, error) {
	variable, ok := s.vars[v]
	if !ok {
		return 0, errs.ErrNotHere
	}
	ver, found := variable.versionAt(startTime)
	if !found {
		return 0, errs.ErrNoVisibleVersion
	}

	// The reader's whole snapshot window predates the failure, so the
	// pre-crash value is still the right answer — but only servable if the
	// site is up for the entire read.
	if ver.commitTime < s.lastFailTime && startTime < s.lastFailTime {
		if !s.available {
			return ver.value, errs.ErrStaleButKnownValue
		}
		return ver.value, nil
	}

	// Available-copies rule: a replica whose visible version predates its
	// last failure cannot serve a post-fail snapshot until a fresh commit
	// lands, regardless of whether it happens to be up right now.
	if replicated(v) && ver.commitTime < s.lastFailTime {
		return 0, errs.ErrNoVisibleVersion
	}
	return ver.value, nil
}

// Write stages value for v under t, pending CommitApply. It fails if the
// site is down or does not carry a copy of v.
func (s *Site) Write(t types.TranID, v types.VarID, value int) error {
	if !s.available {
		return errs.ErrCannotBuffer
	}
	if _, ok := s.vars[v]; !ok {
		return errs.ErrCannotBuffer
	}
	if s.buffer[t] == nil {
		s.buffer[t] = make(map[types.VarID]int)
	}
	s.buffer[t][v] = value
	return nil
}

// CommitApply turns a transaction's staged write into a committed version
// and clears it from the buffer.
func (s *Site) CommitApply(t types.TranID, v types.VarID, value int, commitTime types.Time) {
	if variable, ok := s.vars[v]; ok {
		variable.commit(commitTime, value)
	}
	if buf, ok := s.buffer[t]; ok {
		delete(buf, v)
		if len(buf) == 0 {
			delete(s.buffer, t)
		}
	}
}

// AbortBuffer discards every write t staged at this site, uncommitted.
func (s *Site) AbortBuffer(t types.TranID) {
	delete(s.buffer, t)
}

// Fail marks the site down as of now, clearing its write buffer but
// preserving committed version history.
func (s *Site) Fail(now types.Time) {
	s.available = false
	s.lastFailTime = now
	s.buffer = make(map[types.TranID]map[types.VarID]int)
}

// Recover brings the site back up as of now. For snapshots that begin after
// the failure, replicated copies stay unreadable (per Read's rule above)
// until a fresh commit lands.
func (s *Site) Recover(now types.Time) {
	s.available = true
	s.lastRecoverTime = now
}

// Variables returns the variable IDs this site stores, for dump().
func (s *Site) Variables() []types.VarID {
	ids := make([]types.VarID, 0, len(s.vars))
	for id := range s.vars {
		ids = append(ids, id)
	}
	return ids
}

// CommittedValue returns the latest committed value of v at this site,
// regardless of availability — used by dump(), which reports every site's
// committed state verbatim.
func (s *Site) CommittedValue(v types.VarID) (int, bool) {
	variable, ok := s.vars[v]
	if !ok {
		return 0, false
	}
	return variable.latest().value, true
}

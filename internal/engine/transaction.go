package engine

import "github.com/repcrec/repcrec/internal/types"

// writeIntent is one staged value in a transaction's write set: the value
// itself and the logical time the write was issued, which the durability
// fence at end() compares against every holding site's last-fail time.
type writeIntent struct {
	value     int
	issueTime types.Time
}

// transaction is the coordinator's bookkeeping record for one in-flight
// transaction. Committed transactions stay resident so later validation
// can still see edges to them; aborted ones are removed.
type transaction struct {
	id        types.TranID
	startTime types.Time
	status    types.TranStatus
	readSet   map[types.VarID]struct{}
	writeSet  map[types.VarID]writeIntent

	// waitingOn records, for a Blocked transaction, the site IDs and
	// variable it is waiting on, for queryState's diagnostics. recover()
	// does not consult it; it re-probes every variable in the read set.
	waitingOn map[types.SiteID]types.VarID
}

func newTransaction(id types.TranID, startTime types.Time) *transaction {
	return &transaction{
		id:        id,
		startTime: startTime,
		status:    types.Active,
		readSet:   make(map[types.VarID]struct{}),
		writeSet:  make(map[types.VarID]writeIntent),
		waitingOn: make(map[types.SiteID]types.VarID),
	}
}

func (t *transaction) hasRead(v types.VarID) bool {
	_, ok := t.readSet[v]
	return ok
}

func (t *transaction) hasWritten(v types.VarID) bool {
	_, ok := t.writeSet[v]
	return ok
}

package engine

import (
	"fmt"
	"io"
	"sort"
	"strings"

	errs "github.com/repcrec/repcrec/internal/errors"
	"github.com/repcrec/repcrec/internal/logger"
	"github.com/repcrec/repcrec/internal/types"
)

// Coordinator owns every piece of state in the simulator: the transaction
// table, the serialization Graph, and every Site. It is the only component
// stateful across commands; Sites and the Graph never call back into it.
type Coordinator struct {
	siteNum int
	varNum  int
	clock   Clock
	sites   map[types.SiteID]*Site
	graph   *Graph
	txns    map[types.TranID]*transaction
	aborts  *errs.AbortTracker
	out     io.Writer
	log     *logger.Logger
}

// NewCoordinator builds a coordinator with siteNum sites and varNum
// variables laid out per the available-copies routing rule, reading time
// from clock and writing required output lines to out.
func NewCoordinator(siteNum, varNum int, clock Clock, out io.Writer, log *logger.Logger) *Coordinator {
	sites := make(map[types.SiteID]*Site, siteNum)
	for i := 1; i <= siteNum; i++ {
		id := types.SiteID(i)
		sites[id] = NewSite(id, siteNum, varNum)
	}
	return &Coordinator{
		siteNum: siteNum,
		varNum:  varNum,
		clock:   clock,
		sites:   sites,
		graph:   NewGraph(),
		txns:    make(map[types.TranID]*transaction),
		aborts:  errs.NewAbortTracker(),
		out:     out,
		log:     log,
	}
}

func (c *Coordinator) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Begin inserts T into the table with the current time as its start time.
func (c *Coordinator) Begin(t types.TranID) error {
	if _, ok := c.txns[t]; ok {
		return errs.ErrDuplicateTransaction
	}
	now := c.clock.Now()
	c.txns[t] = newTransaction(t, now)
	c.graph.AddNode(t)
	c.log.Debug("Transaction %d started at %.0f", t, float64(now))
	return nil
}

// Read executes R(T, x): probe x's routed sites in order, serving the
// first ok result, blocking on stale-but-known signals with nowhere else
// to try, and aborting outright if no site can answer at all.
func (c *Coordinator) Read(t types.TranID, v types.VarID) error {
	tx, ok := c.txns[t]
	if !ok {
		return errs.ErrUnknownTransaction
	}
	if tx.status != types.Active {
		return nil
	}

	var waitSet []types.SiteID
	for _, sid := range routingSites(v, c.siteNum) {
		value, err := c.sites[sid].Read(v, tx.startTime)
		switch err {
		case nil:
			tx.readSet[v] = struct{}{}
			for _, u := range c.writersOf(v, t) {
				_ = c.graph.AddEdge(t, u, types.RW)
			}
			c.printf("x%d: %d", v, value)
			return nil
		case errs.ErrStaleButKnownValue:
			waitSet = append(waitSet, sid)
			tx.readSet[v] = struct{}{}
		default:
			continue
		}
	}

	if len(waitSet) > 0 {
		tx.status = types.Blocked
		for _, sid := range waitSet {
			tx.waitingOn[sid] = v
			c.printf("T%d waits for site %d", t, sid)
		}
		c.log.Info("Transaction %d blocked on %d site(s) for x%d", t, len(waitSet), v)
		return nil
	}

	tx.status = types.Aborted
	c.abortTransaction(t, types.AbortNoVisibleVersion)
	return nil
}

// Write executes W(T, x, v): record the anti-dependency/WW edges the new
// write creates against current readers and writers of x, stage it in the
// transaction's write set, and best-effort buffer it at every routed site
// that is currently available.
func (c *Coordinator) Write(t types.TranID, v types.VarID, value int) error {
	tx, ok := c.txns[t]
	if !ok {
		return errs.ErrUnknownTransaction
	}
	if tx.status != types.Active {
		return nil
	}
	now := c.clock.Now()

	for _, u := range c.writersOf(v, t) {
		_ = c.graph.AddEdge(u, t, types.WW)
	}
	for _, u := range c.readersOf(v, t) {
		_ = c.graph.AddEdge(u, t, types.RW)
	}

	tx.writeSet[v] = writeIntent{value: value, issueTime: now}

	buffered := false
	for _, sid := range routingSites(v, c.siteNum) {
		site := c.sites[sid]
		if !site.Available() {
			continue
		}
		if err := site.Write(t, v, value); err != nil {
			c.log.Debug("Buffer failed for transaction %d, x%d at site %d: %v", t, v, sid, err)
			continue
		}
		buffered = true
	}
	if !buffered {
		// Buffer failure is user-visible, but the write set still records
		// the staged value so End's durability check stays uniform.
		c.printf("Write Failed")
	}
	return nil
}

// End executes end(T): the durability fence, cycle validation, WAW
// resolution, and finally commit or abort.
func (c *Coordinator) End(t types.TranID) error {
	tx, ok := c.txns[t]
	if !ok {
		return nil
	}
	if tx.status == types.Committed {
		return nil
	}
	if tx.status == types.Blocked {
		c.abortTransaction(t, types.AbortBlockedAtEnd)
		return nil
	}
	if tx.status == types.Aborted {
		c.abortTransaction(t, types.AbortWAWLoss)
		return nil
	}

	now := c.clock.Now()

	if reason, durable := c.checkDurability(tx); !durable {
		c.abortTransaction(t, reason)
		return nil
	}

	status := make(map[types.TranID]types.TranStatus, len(c.txns))
	for id, other := range c.txns {
		if id == t {
			status[id] = types.Committed
			continue
		}
		status[id] = other.status
	}
	if c.graph.HasCycle(t, status) {
		c.abortTransaction(t, types.AbortCycle)
		return nil
	}

	for u, typ := range c.graph.OutEdges(t) {
		if typ == types.WW {
			c.markAborted(u)
		}
	}
	for u, typ := range c.graph.InEdges(t) {
		if typ == types.WW {
			c.markAborted(u)
		}
	}

	c.commitTransaction(t, now)
	return nil
}

// checkDurability applies the site-availability fence: every write T staged
// must still be honorable by the sites the routing rule requires, none of
// which may have failed after the write was issued.
func (c *Coordinator) checkDurability(tx *transaction) (types.AbortReason, bool) {
	for v, intent := range tx.writeSet {
		if !replicated(v) {
			site := c.sites[homeSite(v, c.siteNum)]
			if !site.Available() || intent.issueTime < site.LastFailTime() {
				return types.AbortDurability, false
			}
			continue
		}
		for _, sid := range routingSites(v, c.siteNum) {
			site := c.sites[sid]
			if intent.issueTime < site.LastFailTime() {
				return types.AbortDurability, false
			}
		}
	}
	return 0, true
}

// markAborted flags a WAW loser; it does not remove the node. That happens
// only when the loser's own End runs.
func (c *Coordinator) markAborted(t types.TranID) {
	if tx, ok := c.txns[t]; ok && tx.status != types.Committed {
		tx.status = types.Aborted
	}
}

func (c *Coordinator) abortTransaction(t types.TranID, reason types.AbortReason) {
	for _, site := range c.sites {
		site.AbortBuffer(t)
	}
	delete(c.txns, t)
	c.graph.RemoveNode(t)
	c.aborts.Record(reason)
	c.log.Info("Transaction %d aborted (%s)", t, reason)
	c.printf("T%d aborts", t)
}

// commitTransaction applies every staged write at each routed, currently
// available site and marks T committed. T stays resident in the table and
// the Graph afterward: a later transaction's validation has to be able to
// find a cycle through an already-committed peer.
func (c *Coordinator) commitTransaction(t types.TranID, now types.Time) {
	tx := c.txns[t]
	for v, intent := range tx.writeSet {
		for _, sid := range routingSites(v, c.siteNum) {
			site := c.sites[sid]
			if site.Available() {
				site.CommitApply(t, v, intent.value, now)
			}
		}
	}
	tx.status = types.Committed
	c.log.Info("Transaction %d committed %d write(s) at %.0f", t, len(tx.writeSet), float64(now))
	c.printf("T%d commits", t)
}

// Fail executes fail(S).
func (c *Coordinator) Fail(s types.SiteID) error {
	site, ok := c.sites[s]
	if !ok {
		return errs.ErrInvalidSite
	}
	if !site.Available() {
		c.printf("site %d is already down", s)
		return nil
	}
	now := c.clock.Now()
	site.Fail(now)
	c.log.Warn("Site %d down at %.0f; buffered writes discarded", s, float64(now))
	c.printf("site %d fail", s)
	return nil
}

// Recover executes recover(S), then attempts to unblock every Blocked
// transaction waiting on a variable S stores.
func (c *Coordinator) Recover(s types.SiteID) error {
	site, ok := c.sites[s]
	if !ok {
		return errs.ErrInvalidSite
	}
	now := c.clock.Now()
	site.Recover(now)
	c.log.Info("Site %d recovered at %.0f", s, float64(now))
	c.printf("site %d recover", s)
	c.unblockReaders(s)
	return nil
}

// unblockReaders implements recover's reader-unblocking pass: for each
// Blocked transaction, for each variable in its read set that S stores,
// re-probe S; on the first success, reactivate the transaction and stop
// probing its remaining variables.
func (c *Coordinator) unblockReaders(s types.SiteID) {
	site := c.sites[s]
	for _, id := range c.sortedTranIDs() {
		tx := c.txns[id]
		if tx.status != types.Blocked {
			continue
		}
		for _, v := range c.sortedVarIDs(tx.readSet) {
			if !site.HasVariable(v) {
				continue
			}
			value, err := site.Read(v, tx.startTime)
			if err != nil {
				continue
			}
			for _, u := range c.writersOf(v, id) {
				_ = c.graph.AddEdge(id, u, types.RW)
			}
			tx.status = types.Active
			tx.waitingOn = make(map[types.SiteID]types.VarID)
			c.log.Info("Transaction %d unblocked by site %d recovery", id, s)
			c.printf("T%d unblocked; x%d: %d", id, v, value)
			break
		}
	}
}

// Dump executes dump(): every site's variables, ascending by ID, with
// their current committed value.
func (c *Coordinator) Dump() {
	for i := 1; i <= c.siteNum; i++ {
		site := c.sites[types.SiteID(i)]
		vars := site.Variables()
		sort.Slice(vars, func(a, b int) bool { return vars[a] < vars[b] })

		parts := make([]string, 0, len(vars))
		for _, v := range vars {
			value, _ := site.CommittedValue(v)
			parts = append(parts, fmt.Sprintf("x%d: %d", v, value))
		}
		if len(parts) == 0 {
			c.printf("site %d -", i)
			continue
		}
		c.printf("site %d - %s", i, strings.Join(parts, ", "))
	}
}

// QueryState executes queryState(): an implementation-defined diagnostic
// dump of transaction, site, and abort-tracker state, for debugging a
// script rather than for any required test assertion.
func (c *Coordinator) QueryState() {
	c.printf("active=%d blocked=%d", c.countByStatus(types.Active), c.countByStatus(types.Blocked))
	for _, id := range c.sortedTranIDs() {
		tx := c.txns[id]
		c.printf("T%d: status=%s start=%.0f reads=%d writes=%d", id, tx.status, float64(tx.startTime), len(tx.readSet), len(tx.writeSet))
		if tx.status == types.Blocked && len(tx.waitingOn) > 0 {
			c.printf("  waiting on sites: %v", tx.waitingOn)
		}
	}
	for i := 1; i <= c.siteNum; i++ {
		site := c.sites[types.SiteID(i)]
		c.printf("site %d: available=%t lastFail=%.0f", i, site.Available(), float64(site.LastFailTime()))
	}
	c.printf("aborts: total=%d cycle=%d waw=%d durability=%d no-visible-version=%d blocked-at-end=%d",
		c.aborts.Total(),
		c.aborts.Count(types.AbortCycle),
		c.aborts.Count(types.AbortWAWLoss),
		c.aborts.Count(types.AbortDurability),
		c.aborts.Count(types.AbortNoVisibleVersion),
		c.aborts.Count(types.AbortBlockedAtEnd),
	)
}

func (c *Coordinator) countByStatus(s types.TranStatus) int {
	n := 0
	for _, tx := range c.txns {
		if tx.status == s {
			n++
		}
	}
	return n
}

func (c *Coordinator) writersOf(v types.VarID, exclude types.TranID) []types.TranID {
	var us []types.TranID
	for id, tx := range c.txns {
		if id == exclude || !tx.hasWritten(v) {
			continue
		}
		us = append(us, id)
	}
	sort.Slice(us, func(i, j int) bool { return us[i] < us[j] })
	return us
}

func (c *Coordinator) readersOf(v types.VarID, exclude types.TranID) []types.TranID {
	var us []types.TranID
	for id, tx := range c.txns {
		if id == exclude || !tx.hasRead(v) {
			continue
		}
		us = append(us, id)
	}
	sort.Slice(us, func(i, j int) bool { return us[i] < us[j] })
	return us
}

func (c *Coordinator) sortedTranIDs() []types.TranID {
	ids := make([]types.TranID, 0, len(c.txns))
	for id := range c.txns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Coordinator) sortedVarIDs(set map[types.VarID]struct{}) []types.VarID {
	vs := make([]types.VarID, 0, len(set))
	for v := range set {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	return vs
}

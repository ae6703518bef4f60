package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/repcrec/repcrec/internal/logger"
	"github.com/repcrec/repcrec/internal/types"
)

// newTestCoordinator builds a coordinator over a small topology with an
// in-memory output sink and a clock the test advances explicitly.
func newTestCoordinator(t *testing.T, siteNum, varNum int) (*Coordinator, *TickClock, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	clock := NewTickClock(1)
	coord := NewCoordinator(siteNum, varNum, clock, &buf, logger.New(&bytes.Buffer{}, logger.LevelError, "[test]"))
	return coord, clock, &buf
}

func outputLines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func containsLine(buf *bytes.Buffer, want string) bool {
	for _, line := range outputLines(buf) {
		if line == want {
			return true
		}
	}
	return false
}

func hasLinePrefix(buf *bytes.Buffer, prefix string) bool {
	for _, line := range outputLines(buf) {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func mustBegin(t *testing.T, c *Coordinator, id types.TranID) {
	t.Helper()
	if err := c.Begin(id); err != nil {
		t.Fatalf("Begin(T%d): %v", id, err)
	}
}

// S1: WAW race — first committer wins, second aborts.
func TestCoordinator_S1_WAWRace(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	mustBegin(t, c, 1)
	clock.Advance()
	mustBegin(t, c, 2)
	clock.Advance()
	if err := c.Write(1, 1, 101); err != nil {
		t.Fatalf("Write T1: %v", err)
	}
	clock.Advance()
	if err := c.Write(2, 1, 102); err != nil {
		t.Fatalf("Write T2: %v", err)
	}
	clock.Advance()
	if err := c.End(1); err != nil {
		t.Fatalf("End T1: %v", err)
	}
	clock.Advance()
	if err := c.End(2); err != nil {
		t.Fatalf("End T2: %v", err)
	}

	if !containsLine(buf, "T1 commits") {
		t.Errorf("expected T1 commits, got:\n%s", buf.String())
	}
	if !containsLine(buf, "T2 aborts") {
		t.Errorf("expected T2 aborts, got:\n%s", buf.String())
	}

	buf.Reset()
	c.Dump()
	if !hasLinePrefix(buf, "site 2 - x1: 101,") {
		t.Errorf("expected x1: 101 at site 2, got:\n%s", buf.String())
	}
}

// S2: RW anti-dependency cycle — T1 commits, T2 aborts detecting a cycle
// with T1 as a Committed peer.
func TestCoordinator_S2_RWCycle(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	mustBegin(t, c, 1)
	clock.Advance()
	mustBegin(t, c, 2)
	clock.Advance()
	if err := c.Read(1, 2); err != nil {
		t.Fatalf("Read T1 x2: %v", err)
	}
	clock.Advance()
	if err := c.Read(2, 2); err != nil {
		t.Fatalf("Read T2 x2: %v", err)
	}
	clock.Advance()
	if err := c.Write(1, 2, 22); err != nil {
		t.Fatalf("Write T1 x2: %v", err)
	}
	clock.Advance()
	if err := c.Write(2, 2, 23); err != nil {
		t.Fatalf("Write T2 x2: %v", err)
	}
	clock.Advance()
	if err := c.End(1); err != nil {
		t.Fatalf("End T1: %v", err)
	}
	clock.Advance()
	if err := c.End(2); err != nil {
		t.Fatalf("End T2: %v", err)
	}

	if !containsLine(buf, "T1 commits") {
		t.Errorf("expected T1 commits, got:\n%s", buf.String())
	}
	if !containsLine(buf, "T2 aborts") {
		t.Errorf("expected T2 aborts, got:\n%s", buf.String())
	}
}

// S3: a failed home site forces abort of a non-replicated write at end.
func TestCoordinator_S3_FailErasesStage(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	mustBegin(t, c, 1)
	clock.Advance()
	if err := c.Write(1, 3, 33); err != nil { // x3 homed at site 1+(3%10)=4
		t.Fatalf("Write T1 x3: %v", err)
	}
	clock.Advance()
	if err := c.Fail(4); err != nil {
		t.Fatalf("Fail site 4: %v", err)
	}
	clock.Advance()
	if err := c.End(1); err != nil {
		t.Fatalf("End T1: %v", err)
	}

	if !containsLine(buf, "T1 aborts") {
		t.Errorf("expected T1 aborts, got:\n%s", buf.String())
	}
}

// S4: a replicated read skips a down site that has not recommitted and
// succeeds at another.
func TestCoordinator_S4_ReplicatedReadAfterFail(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	clock.Advance()
	if err := c.Fail(1); err != nil { // site 1 is probed first for x4
		t.Fatalf("Fail site 1: %v", err)
	}
	clock.Advance()
	mustBegin(t, c, 1) // snapshot begins after site 1's failure
	clock.Advance()
	if err := c.Read(1, 4); err != nil {
		t.Fatalf("Read T1 x4: %v", err)
	}

	if !containsLine(buf, "x4: 40") {
		t.Errorf("expected x4: 40, got:\n%s", buf.String())
	}
}

// S5: a blocked reader is released by recover and the deferred end then
// commits.
func TestCoordinator_S5_RecoverUnblocks(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	mustBegin(t, c, 1)
	clock.Advance()
	if err := c.Fail(4); err != nil { // x3 homed at site 4
		t.Fatalf("Fail site 4: %v", err)
	}
	clock.Advance()
	if err := c.Read(1, 3); err != nil {
		t.Fatalf("Read T1 x3: %v", err)
	}
	if !containsLine(buf, "T1 waits for site 4") {
		t.Errorf("expected T1 waits for site 4, got:\n%s", buf.String())
	}

	clock.Advance()
	if err := c.Recover(4); err != nil {
		t.Fatalf("Recover site 4: %v", err)
	}
	if !containsLine(buf, "T1 unblocked; x3: 30") {
		t.Errorf("expected T1 unblocked; x3: 30, got:\n%s", buf.String())
	}

	clock.Advance()
	if err := c.End(1); err != nil {
		t.Fatalf("End T1: %v", err)
	}
	if !containsLine(buf, "T1 commits") {
		t.Errorf("expected T1 commits, got:\n%s", buf.String())
	}
}

// S6: a WAW loser marked Aborted by the winner's commit aborts cleanly at
// its own end, without a redundant commit attempt.
func TestCoordinator_S6_CommitClearsWAWLosers(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	mustBegin(t, c, 1)
	clock.Advance()
	mustBegin(t, c, 2)
	clock.Advance()
	if err := c.Write(1, 4, 44); err != nil {
		t.Fatalf("Write T1 x4: %v", err)
	}
	clock.Advance()
	if err := c.Write(2, 4, 45); err != nil {
		t.Fatalf("Write T2 x4: %v", err)
	}
	clock.Advance()
	if err := c.End(1); err != nil {
		t.Fatalf("End T1: %v", err)
	}
	if !containsLine(buf, "T1 commits") {
		t.Errorf("expected T1 commits, got:\n%s", buf.String())
	}

	clock.Advance()
	if err := c.End(2); err != nil {
		t.Fatalf("End T2: %v", err)
	}
	if !containsLine(buf, "T2 aborts") {
		t.Errorf("expected T2 aborts, got:\n%s", buf.String())
	}
}

// A write against a variable with every routed site down surfaces the
// user-visible "Write Failed" line, even though the write set still stages
// the value for end()'s durability check.
func TestCoordinator_WriteFailedWhenNoSiteCanBuffer(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	mustBegin(t, c, 1)
	clock.Advance()
	if err := c.Fail(4); err != nil { // x3's only home site
		t.Fatalf("Fail site 4: %v", err)
	}
	clock.Advance()
	if err := c.Write(1, 3, 33); err != nil {
		t.Fatalf("Write T1 x3: %v", err)
	}
	if !containsLine(buf, "Write Failed") {
		t.Errorf("expected Write Failed, got:\n%s", buf.String())
	}
}

// A replicated reader whose snapshot predates every copy's failure blocks
// on all of them and is released by the first recover.
func TestCoordinator_ReplicatedReaderBlocksWhenAllCopiesDown(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 2, 4)

	mustBegin(t, c, 1)
	clock.Advance()
	if err := c.Fail(1); err != nil {
		t.Fatalf("Fail site 1: %v", err)
	}
	clock.Advance()
	if err := c.Fail(2); err != nil {
		t.Fatalf("Fail site 2: %v", err)
	}
	clock.Advance()
	if err := c.Read(1, 2); err != nil {
		t.Fatalf("Read T1 x2: %v", err)
	}
	if !containsLine(buf, "T1 waits for site 1") || !containsLine(buf, "T1 waits for site 2") {
		t.Errorf("expected waits for sites 1 and 2, got:\n%s", buf.String())
	}

	clock.Advance()
	if err := c.Recover(1); err != nil {
		t.Fatalf("Recover site 1: %v", err)
	}
	if !containsLine(buf, "T1 unblocked; x2: 20") {
		t.Errorf("expected T1 unblocked; x2: 20, got:\n%s", buf.String())
	}
}

func TestCoordinator_FailAlreadyDownSite(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)
	if err := c.Fail(3); err != nil {
		t.Fatalf("Fail site 3: %v", err)
	}
	clock.Advance()
	if err := c.Fail(3); err != nil {
		t.Fatalf("second Fail site 3: %v", err)
	}
	if !containsLine(buf, "site 3 is already down") {
		t.Errorf("expected already-down notice, got:\n%s", buf.String())
	}
}

// end on an already-committed transaction is a no-op: Committed is terminal.
func TestCoordinator_EndAfterCommitIsNoOp(t *testing.T) {
	c, clock, buf := newTestCoordinator(t, 10, 20)

	mustBegin(t, c, 1)
	clock.Advance()
	if err := c.Write(1, 2, 22); err != nil {
		t.Fatalf("Write T1 x2: %v", err)
	}
	clock.Advance()
	if err := c.End(1); err != nil {
		t.Fatalf("End T1: %v", err)
	}
	clock.Advance()
	if err := c.End(1); err != nil {
		t.Fatalf("second End T1: %v", err)
	}

	if got := strings.Count(buf.String(), "T1 commits"); got != 1 {
		t.Errorf("expected exactly one commit line, got %d:\n%s", got, buf.String())
	}
}

func TestCoordinator_BeginDuplicate(t *testing.T) {
	c, _, _ := newTestCoordinator(t, 10, 20)
	mustBegin(t, c, 1)
	if err := c.Begin(1); err == nil {
		t.Fatalf("expected duplicate-transaction error")
	}
}

func TestCoordinator_UnknownTransactionOps(t *testing.T) {
	c, _, _ := newTestCoordinator(t, 10, 20)
	if err := c.Read(99, 2); err == nil {
		t.Fatalf("expected unknown-transaction error on Read")
	}
	if err := c.Write(99, 2, 1); err == nil {
		t.Fatalf("expected unknown-transaction error on Write")
	}
}

func TestCoordinator_InvalidSite(t *testing.T) {
	c, _, _ := newTestCoordinator(t, 10, 20)
	if err := c.Fail(99); err == nil {
		t.Fatalf("expected invalid-site error")
	}
	if err := c.Recover(0); err == nil {
		t.Fatalf("expected invalid-site error")
	}
}

func TestCoordinator_DumpEmptySiteFormat(t *testing.T) {
	c, _, buf := newTestCoordinator(t, 2, 1) // x1 odd, homed at site 1+(1%2)=2; site 1 stores nothing
	c.Dump()
	if !containsLine(buf, "site 1 -") {
		t.Errorf("expected empty site 1 line, got:\n%s", buf.String())
	}
}

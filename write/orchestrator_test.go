package write

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/listora/listora"
	"github.com/listora/listora/lock"
	"github.com/listora/listora/mocks"
)

func testOptions() listora.Options {
	o := listora.DefaultOptions()
	o.RetryBaseDelay = time.Millisecond
	return o
}

func newTestOrchestrator(store *mocks.Store) *Orchestrator {
	return NewOrchestrator(store, lock.NewManager(time.Minute), testOptions())
}

func TestAppendHappyPath(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"eggs"}})
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk", "1"}}, 0)
	if !res.Succeeded {
		t.Fatalf("append failed: %s (%v)", res.Message, res.Err)
	}
	rows := store.Rows("list")
	if len(rows) != 2 || rows[1].Cell(0) != "milk" {
		t.Errorf("unexpected table content: %v", rows)
	}
}

func TestConcurrentAppendsSameKey(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"eggs"}})
	o := newTestOrchestrator(store)

	var wg sync.WaitGroup
	results := make([]listora.OperationResult, 2)
	for i, name := range []string{"milk", "bread"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{name}}, 0)
		}(i, name)
	}
	wg.Wait()

	for i, res := range results {
		if !res.Succeeded {
			t.Fatalf("append %d failed: %s (%v)", i, res.Message, res.Err)
		}
	}
	rows := store.Rows("list")
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want prior + 2 = 3", len(rows))
	}
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Cell(0)]++
	}
	if counts["milk"] != 1 || counts["bread"] != 1 {
		t.Errorf("rows not present exactly once: %v", counts)
	}
}

// With per-key serialization, each orchestration reads exactly twice (one
// snapshot, one validation read) and never trips the mismatch loop: overlap
// would show up as extra reads or convergence failures.
func TestSerializationNoMismatchUnderContention(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	o := newTestOrchestrator(store)

	const n = 8
	tr := listora.NewTaskRunner(ctx, 0)
	for i := 0; i < n; i++ {
		tr.Go(func() error {
			res := o.AppendWithDuplicateCheck(tr.GetContext(), "list", []listora.Row{{fmt.Sprintf("item-%d", i)}}, 0)
			if !res.Succeeded {
				return fmt.Errorf("append %d failed: %s (%v)", i, res.Message, res.Err)
			}
			return nil
		})
	}
	if err := tr.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := len(store.Rows("list")); got != n {
		t.Errorf("got %d rows, want %d", got, n)
	}
	if got := store.Calls(mocks.Read); got != 2*n {
		t.Errorf("got %d reads, want exactly %d (serialized orchestrations never re-snapshot)", got, 2*n)
	}
	if got := store.Calls(mocks.Appnd); got != n {
		t.Errorf("got %d appends, want %d", got, n)
	}
}

func TestDistinctKeysRunInParallel(t *testing.T) {
	store := mocks.NewStore()
	o := newTestOrchestrator(store)

	// Stall chan-a's append; an append to chan-b must still complete.
	release := make(chan struct{})
	store.BeforeAppend = func(table string, n int) {
		if table == "chan-a" {
			<-release
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.AppendWithDuplicateCheck(context.Background(), "chan-a", []listora.Row{{"slow"}}, 0)
	}()

	done := make(chan listora.OperationResult, 1)
	go func() {
		done <- o.AppendWithDuplicateCheck(context.Background(), "chan-b", []listora.Row{{"fast"}}, 0)
	}()
	select {
	case res := <-done:
		if !res.Succeeded {
			t.Errorf("chan-b append failed: %s", res.Message)
		}
	case <-time.After(2 * time.Second):
		t.Error("append on a different key blocked behind chan-a")
	}
	close(release)
	wg.Wait()
}

func TestMismatchResolvedByOneRetry(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"eggs"}})
	// Slip a competing row in between the snapshot (read 1) and the
	// validation read (read 2).
	store.BeforeRead = func(table string, n int) {
		if n == 2 {
			store.Seed("list", []listora.Row{{"eggs"}, {"butter"}})
		}
	}
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, 0)
	if !res.Succeeded {
		t.Fatalf("append should converge after one retry: %s (%v)", res.Message, res.Err)
	}
	if got := store.Calls(mocks.Read); got != 4 {
		t.Errorf("got %d reads, want 4 (two snapshot/validation rounds)", got)
	}
	if got := len(store.Rows("list")); got != 3 {
		t.Errorf("got %d rows, want 3", got)
	}
}

func TestPersistentMismatchCouldNotConverge(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	// Every validation read observes a table that moved again.
	store.BeforeRead = func(table string, n int) {
		if n%2 == 0 {
			rows := store.Rows("list")
			store.Seed("list", append(rows, listora.Row{fmt.Sprintf("intruder-%d", n)}))
		}
	}
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, 0)
	if res.Succeeded {
		t.Fatal("append should have failed to converge")
	}
	if !strings.Contains(res.Message, "could not converge") {
		t.Errorf("unexpected message: %s", res.Message)
	}
	if listora.CodeOf(res.Err) != listora.RowCountMismatch {
		t.Errorf("got code %d, want RowCountMismatch", listora.CodeOf(res.Err))
	}
	if got := store.Calls(mocks.Appnd); got != 0 {
		t.Errorf("no write should have occurred, got %d appends", got)
	}
}

func TestDuplicateFailsImmediately(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"Milk", "1"}})
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, 0)
	if res.Succeeded {
		t.Fatal("duplicate append should fail")
	}
	if !strings.Contains(res.Message, "already exists") {
		t.Errorf("unexpected message: %s", res.Message)
	}
	if store.Calls(mocks.Appnd) != 0 {
		t.Error("no write should have been attempted")
	}
	if store.Calls(mocks.Clear) != 0 {
		t.Error("no rollback should have been attempted")
	}
}

func TestDuplicateInBatchRejected(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}, {"milk"}}, 0)
	if res.Succeeded {
		t.Fatal("batch with an internal duplicate should fail")
	}
	if store.Calls(mocks.Appnd) != 0 {
		t.Error("no write should have been attempted")
	}
}

// A duplicate slipped in by a competitor between the snapshot and the
// mismatch retry is caught by the re-run of the full validation.
func TestDuplicateIntroducedDuringMismatchRetry(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"bread"}})
	store.BeforeRead = func(table string, n int) {
		if n == 2 {
			store.Seed("list", []listora.Row{{"bread"}, {"milk"}})
		}
	}
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, 0)
	if res.Succeeded {
		t.Fatal("append should fail: the retried validation must see the new duplicate")
	}
	if !strings.Contains(res.Message, "already exists") {
		t.Errorf("unexpected message: %s", res.Message)
	}
	if store.Calls(mocks.Appnd) != 0 {
		t.Error("no write should have been attempted")
	}
}

func TestTransientAppendRetriedToSuccess(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.FailNext(mocks.Appnd, 503, 2)
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, 0)
	if !res.Succeeded {
		t.Fatalf("append should survive transient failures: %s (%v)", res.Message, res.Err)
	}
	if got := store.Calls(mocks.Appnd); got != 3 {
		t.Errorf("got %d append calls, want 3", got)
	}
}

func TestWriteFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"eggs"}})
	store.FailNext(mocks.Appnd, 400, 1)
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, 0)
	if res.Succeeded {
		t.Fatal("append should fail on a 400")
	}
	if !strings.Contains(res.Message, "restored") {
		t.Errorf("unexpected message: %s", res.Message)
	}
	if store.Calls(mocks.Clear) != 1 {
		t.Errorf("got %d rollback writes, want 1", store.Calls(mocks.Clear))
	}
	rows := store.Rows("list")
	if len(rows) != 1 || rows[0].Cell(0) != "eggs" {
		t.Errorf("table not restored to snapshot: %v", rows)
	}
}

func TestWriteFailureWithEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.FailNextWith(mocks.Appnd, errors.New("connection reset"))
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, 0)
	if res.Succeeded {
		t.Fatal("append should fail")
	}
	if store.Calls(mocks.Clear) != 0 {
		t.Error("an empty snapshot must not be written back")
	}
	if !strings.Contains(res.Message, "no backup") {
		t.Errorf("unexpected message: %s", res.Message)
	}
}

func TestOverallTimeoutFailsFast(t *testing.T) {
	store := mocks.NewStore()
	opts := testOptions()
	opts.MaxTime = 30 * time.Millisecond
	lm := lock.NewManager(time.Minute)
	o := NewOrchestrator(store, lm, opts)

	blocker, err := lm.Acquire(context.Background(), "list")
	if err != nil {
		t.Fatal(err)
	}
	defer blocker.Release()

	start := time.Now()
	res := o.AppendWithDuplicateCheck(context.Background(), "list", []listora.Row{{"milk"}}, 0)
	if res.Succeeded {
		t.Fatal("append should time out while the lock is held elsewhere")
	}
	if listora.CodeOf(res.Err) != listora.LockAcquisitionFailure {
		t.Errorf("got code %d, want LockAcquisitionFailure", listora.CodeOf(res.Err))
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took far longer than MaxTime")
	}
}

func TestDuplicateCheckDisabled(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"milk"}})
	o := newTestOrchestrator(store)

	res := o.AppendWithDuplicateCheck(ctx, "list", []listora.Row{{"milk"}}, -1)
	if !res.Succeeded {
		t.Fatalf("append with disabled duplicate check failed: %s", res.Message)
	}
	if got := len(store.Rows("list")); got != 2 {
		t.Errorf("got %d rows, want 2", got)
	}
}

func TestRewriteTransformsUnderLock(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"milk"}, {"bread"}})
	o := newTestOrchestrator(store)

	res := o.Rewrite(ctx, "list", func(live []listora.Row) ([]listora.Row, string, error) {
		return live[:1], "trimmed", nil
	})
	if !res.Succeeded || res.Message != "trimmed" {
		t.Fatalf("rewrite failed: %s (%v)", res.Message, res.Err)
	}
	if got := len(store.Rows("list")); got != 1 {
		t.Errorf("got %d rows, want 1", got)
	}
}

func TestOverwriteAllReplacesContent(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"milk"}, {"bread"}})
	o := newTestOrchestrator(store)

	res := o.OverwriteAll(ctx, "list", []listora.Row{{"eggs"}})
	if !res.Succeeded {
		t.Fatalf("overwrite failed: %s (%v)", res.Message, res.Err)
	}
	rows := store.Rows("list")
	if len(rows) != 1 || rows[0].Cell(0) != "eggs" {
		t.Errorf("unexpected table content: %v", rows)
	}
}

func TestRewriteFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	store.Seed("list", []listora.Row{{"milk"}, {"bread"}})
	store.FailNext(mocks.Clear, 400, 1)
	o := newTestOrchestrator(store)

	res := o.Rewrite(ctx, "list", func(live []listora.Row) ([]listora.Row, string, error) {
		return live[:1], "trimmed", nil
	})
	if res.Succeeded {
		t.Fatal("rewrite should fail on a 400")
	}
	rows := store.Rows("list")
	if len(rows) != 2 {
		t.Errorf("table not restored to snapshot: %v", rows)
	}
}

package padoracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// offsetOracle answers true for the offsets in want, after sleeping delay.
// The offset is carried in the first content byte.
func offsetOracle(delay time.Duration, want map[byte]bool) Oracle {
	return OracleFunc(func(ctx context.Context, content []byte) (bool, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
		return want[content[0]], nil
	})
}

func batch(count int) []Query {
	queries := make([]Query, count)
	for i := range queries {
		queries[i] = Query{Offset: i, Content: []byte{byte(i)}}
	}
	return queries
}

func TestEnsemble_SmallestOffsetWinsRegardlessOfOrder(t *testing.T) {
	want := map[byte]bool{2: true, 3: true}

	// Oracle i answers after (4-i) ticks, so offset 3 reports first and
	// offset 0 last.
	oracles := make([]Oracle, 4)
	for i := range oracles {
		oracles[i] = offsetOracle(time.Duration(4-i)*20*time.Millisecond, want)
	}
	ens := newTestEnsemble(t, oracles...)

	res, err := ens.ProbeBatch(context.Background(), batch(4))
	if err != nil {
		t.Fatalf("ProbeBatch failed: %v", err)
	}
	if !res.Found || res.Offset != 2 {
		t.Errorf("ProbeBatch = (found=%v, offset=%d), want (true, 2)", res.Found, res.Offset)
	}
}

func TestEnsemble_OffsetsAreSortedBeforeReconciling(t *testing.T) {
	ens := newTestEnsemble(t,
		offsetOracle(0, map[byte]bool{1: true, 2: true}),
		offsetOracle(50*time.Millisecond, map[byte]bool{1: true, 2: true}),
	)

	// Offset 1 is sent second and answers later.
	queries := []Query{
		{Offset: 2, Content: []byte{2}},
		{Offset: 1, Content: []byte{1}},
	}
	res, err := ens.ProbeBatch(context.Background(), queries)
	if err != nil {
		t.Fatalf("ProbeBatch failed: %v", err)
	}
	if !res.Found || res.Offset != 1 {
		t.Errorf("ProbeBatch = (found=%v, offset=%d), want (true, 1)", res.Found, res.Offset)
	}
}

func TestEnsemble_NoneConforming(t *testing.T) {
	ens := newTestEnsemble(t, offsetOracle(0, nil), offsetOracle(0, nil), offsetOracle(0, nil))

	res, err := ens.ProbeBatch(context.Background(), batch(3))
	if err != nil {
		t.Fatalf("ProbeBatch failed: %v", err)
	}
	if res.Found {
		t.Errorf("ProbeBatch found offset %d, want none", res.Offset)
	}
}

func TestEnsemble_ErrorCountsAsFalse(t *testing.T) {
	failing := OracleFunc(func(ctx context.Context, content []byte) (bool, error) {
		return true, ErrMalformedResponse
	})
	ens := newTestEnsemble(t,
		offsetOracle(0, map[byte]bool{2: true}),
		failing,
		offsetOracle(0, map[byte]bool{2: true}),
	)

	res, err := ens.ProbeBatch(context.Background(), batch(3))
	if err != nil {
		t.Fatalf("ProbeBatch failed: %v", err)
	}
	if !res.Found || res.Offset != 2 {
		t.Errorf("ProbeBatch = (found=%v, offset=%d), want (true, 2)", res.Found, res.Offset)
	}
	if len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], ErrMalformedResponse) {
		t.Errorf("warnings = %v, want one ErrMalformedResponse", res.Warnings)
	}
}

func TestEnsemble_AllUnavailable(t *testing.T) {
	down := OracleFunc(func(ctx context.Context, content []byte) (bool, error) {
		return false, ErrOracleUnavailable
	})
	ens := newTestEnsemble(t, down, down)

	if _, err := ens.ProbeBatch(context.Background(), batch(2)); !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("ProbeBatch error = %v, want ErrOracleUnavailable", err)
	}
	if _, err := ens.Query(context.Background(), []byte{0}); !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("Query error = %v, want ErrOracleUnavailable", err)
	}
	if _, _, err := ens.QueryAll(context.Background(), [][]byte{{0}, {1}, {2}}); !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("QueryAll error = %v, want ErrOracleUnavailable", err)
	}
}

func TestEnsemble_QueryFailsOver(t *testing.T) {
	down := OracleFunc(func(ctx context.Context, content []byte) (bool, error) {
		return false, ErrOracleUnavailable
	})
	ens := newTestEnsemble(t, down, offsetOracle(0, map[byte]bool{7: true}))

	var warnings int32
	ens.SetWarningHandler(func(err error) { atomic.AddInt32(&warnings, 1) })

	ok, err := ens.Query(context.Background(), []byte{7})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !ok {
		t.Error("Query = false, want true from the second oracle")
	}
	if atomic.LoadInt32(&warnings) != 1 {
		t.Errorf("got %d warnings, want 1", warnings)
	}
}

func TestEnsemble_QueryAllKeepsOrder(t *testing.T) {
	ens := newTestEnsemble(t,
		offsetOracle(30*time.Millisecond, map[byte]bool{0: true, 3: true}),
		offsetOracle(0, map[byte]bool{0: true, 3: true}),
	)

	answers, warnings, err := ens.QueryAll(context.Background(), [][]byte{{0}, {1}, {2}, {3}})
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	want := []bool{true, false, false, true}
	for i := range want {
		if answers[i] != want[i] {
			t.Errorf("answer %d = %v, want %v", i, answers[i], want[i])
		}
	}
}

func TestEnsemble_OracleNeverSharedBetweenGoroutines(t *testing.T) {
	oracles := make([]Oracle, 3)
	var overlap int32
	for i := range oracles {
		var inflight int32
		oracles[i] = OracleFunc(func(ctx context.Context, content []byte) (bool, error) {
			if atomic.AddInt32(&inflight, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inflight, -1)
			return false, nil
		})
	}
	ens := newTestEnsemble(t, oracles...)

	for round := 0; round < 5; round++ {
		if _, err := ens.ProbeBatch(context.Background(), batch(9)); err != nil {
			t.Fatalf("ProbeBatch failed: %v", err)
		}
	}
	if atomic.LoadInt32(&overlap) != 0 {
		t.Error("an oracle was queried concurrently")
	}
	if got := ens.Queries(); got != 45 {
		t.Errorf("Queries = %d, want 45", got)
	}
}

func TestEnsemble_Cancelled(t *testing.T) {
	ens := newTestEnsemble(t, offsetOracle(time.Second, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := ens.ProbeBatch(ctx, batch(1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ProbeBatch error = %v, want context.DeadlineExceeded", err)
	}
}

type closingOracle struct {
	closed bool
}

func (o *closingOracle) Query(ctx context.Context, content []byte) (bool, error) {
	return false, nil
}

func (o *closingOracle) Close() error {
	o.closed = true
	return nil
}

func TestEnsemble_CloseClosesOracles(t *testing.T) {
	o := &closingOracle{}
	ens, err := NewEnsemble(o)
	if err != nil {
		t.Fatalf("Failed to create ensemble: %v", err)
	}
	if err := ens.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !o.closed {
		t.Error("oracle was not closed")
	}
}

func TestNewEnsemble_Invalid(t *testing.T) {
	if _, err := NewEnsemble(); err == nil {
		t.Error("expected an error for an empty ensemble")
	}
	if _, err := NewEnsemble(nil); err == nil {
		t.Error("expected an error for a nil oracle")
	}
}

func TestEnsemble_DeadOracleFailsOverInBatches(t *testing.T) {
	dead := OracleFunc(func(ctx context.Context, content []byte) (bool, error) {
		return false, ErrOracleUnavailable
	})
	live := func() Oracle { return offsetOracle(0, map[byte]bool{0: true, 2: true}) }
	ens := newTestEnsemble(t, dead, live(), live(), live())

	// A single query lands on the dead oracle first.
	res, err := ens.ProbeBatch(context.Background(), batch(1))
	if err != nil {
		t.Fatalf("ProbeBatch failed: %v", err)
	}
	if !res.Found || res.Offset != 0 {
		t.Errorf("ProbeBatch = (found=%v, offset=%d), want (true, 0)", res.Found, res.Offset)
	}
	if len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], ErrOracleUnavailable) {
		t.Errorf("warnings = %v, want one ErrOracleUnavailable", res.Warnings)
	}

	// In a full batch the dead oracle's candidate is retried, not dropped.
	res, err = ens.ProbeBatch(context.Background(), []Query{
		{Offset: 0, Content: []byte{2}},
		{Offset: 1, Content: []byte{1}},
		{Offset: 2, Content: []byte{1}},
		{Offset: 3, Content: []byte{1}},
	})
	if err != nil {
		t.Fatalf("ProbeBatch failed: %v", err)
	}
	if !res.Found || res.Offset != 0 {
		t.Errorf("ProbeBatch = (found=%v, offset=%d), want (true, 0)", res.Found, res.Offset)
	}

	answers, warnings, err := ens.QueryAll(context.Background(), [][]byte{{0}, {1}, {2}, {3}, {0}})
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	want := []bool{true, false, true, false, true}
	for i := range want {
		if answers[i] != want[i] {
			t.Errorf("answer %d = %v, want %v", i, answers[i], want[i])
		}
	}
	if len(warnings) == 0 {
		t.Error("expected warnings for the dead oracle")
	}
}

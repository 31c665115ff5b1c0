package budget

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

func TestBadgerStore_Missing(t *testing.T) {
	s := newTestBadgerStore(t)

	_, err := s.Load(context.Background())
	if !errors.Is(err, domain.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	want := domgov.State{TokensUsed: 99, LastReset: "2024-02-29"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestBadgerStore_Corrupt(t *testing.T) {
	s := newTestBadgerStore(t)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, []byte("not json"))
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Load(context.Background())
	if !errors.Is(err, domain.ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
}

func TestBadgerStore_RecordRollsAndAdds(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	st, err := s.Record(ctx, "2024-01-01", 100)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if st != (domgov.State{TokensUsed: 100, LastReset: "2024-01-01"}) {
		t.Errorf("first record = %+v", st)
	}

	st, _ = s.Record(ctx, "2024-01-01", 50)
	if st.TokensUsed != 150 {
		t.Errorf("same day = %d, want 150", st.TokensUsed)
	}

	st, _ = s.Record(ctx, "2024-01-02", 10)
	if st != (domgov.State{TokensUsed: 10, LastReset: "2024-01-02"}) {
		t.Errorf("next day = %+v", st)
	}

	// A lagging caller never rolls the period back.
	st, _ = s.Record(ctx, "2024-01-01", 5)
	if st != (domgov.State{TokensUsed: 15, LastReset: "2024-01-02"}) {
		t.Errorf("stale day = %+v", st)
	}

	loaded, _ := s.Load(ctx)
	if loaded != st {
		t.Errorf("Load = %+v, want %+v", loaded, st)
	}
}

func TestBadgerStore_RecordOverflow(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, "2024-01-01", 10); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_, err := s.Record(ctx, "2024-01-01", math.MaxInt64)
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.TokensUsed != 10 {
		t.Errorf("used after rejected overflow = %d, want 10", st.TokensUsed)
	}

	st, err = s.Record(ctx, "2024-01-01", math.MaxInt64-10)
	if err != nil || st.TokensUsed != math.MaxInt64 {
		t.Errorf("Record up to max = %+v, %v", st, err)
	}
}

func TestOpenBadger_SyncWrites(t *testing.T) {
	db, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer db.Close()

	if !db.Opts().SyncWrites {
		t.Error("SyncWrites disabled")
	}
	s := NewBadgerStore(db, "")
	want := domgov.State{TokensUsed: 7, LastReset: "2024-01-01"}
	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Load(context.Background()); got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestBadgerStore_ConcurrentRecord(t *testing.T) {
	s := newTestBadgerStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed int
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Record(ctx, "2024-01-01", 1); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.TokensUsed+int64(failed) != 20 {
		t.Errorf("used %d + failed %d != 20", st.TokensUsed, failed)
	}
}

func TestBadgerStore_Ping(t *testing.T) {
	s := newTestBadgerStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	_ = s.db.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected error after close")
	}
}

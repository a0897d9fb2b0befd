package membership

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/datura-labs/argus/internal/chain"
	"github.com/datura-labs/argus/internal/worker"
)

// fakeTransport marks configured addresses as dead.
type fakeTransport struct {
	dead map[string]bool
}

func (f *fakeTransport) Query(context.Context, string, worker.QueryTask, time.Duration) (*worker.Response, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeTransport) IsAlive(_ context.Context, addr string, _ time.Duration) error {
	if f.dead[addr] {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func metagraph(n int) chain.SubnetMetagraph {
	mg := chain.SubnetMetagraph{Tempo: 360}
	for i := range n {
		mg.Hotkeys = append(mg.Hotkeys, fmt.Sprintf("hk%d", i))
		mg.Coldkeys = append(mg.Coldkeys, fmt.Sprintf("ck%d", i))
		mg.Axons = append(mg.Axons, chain.AxonInfo{IP: fmt.Sprintf("10.0.0.%d", i), Port: 8091})
	}
	return mg
}

func TestRefreshRequiresMetagraph(t *testing.T) {
	tr := NewTracker(chain.NewState(1), &fakeTransport{}, time.Second)
	if err := tr.Refresh(context.Background()); err == nil {
		t.Fatal("expected error before metagraph sync")
	}
}

func TestRefreshProbesAndFilters(t *testing.T) {
	state := chain.NewState(1)
	state.SetMetagraph(metagraph(4))

	ft := &fakeTransport{dead: map[string]bool{"10.0.0.2:8091": true}}
	tr := NewTracker(state, ft, time.Second)

	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	available := tr.AvailableUIDs()
	if len(available) != 3 {
		t.Fatalf("expected 3 available workers, got %v", available)
	}
	for _, uid := range available {
		if uid == 2 {
			t.Fatal("dead worker reported available")
		}
	}

	rec, ok := tr.Get(2)
	if !ok {
		t.Fatal("dead worker must still be in the snapshot")
	}
	if rec.IsAvailable {
		t.Fatal("dead worker marked available")
	}
	if rec.Hotkey != "hk2" || rec.Coldkey != "ck2" {
		t.Fatalf("record keys not populated: %+v", rec)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	state := chain.NewState(1)
	state.SetMetagraph(metagraph(3))
	tr := NewTracker(state, &fakeTransport{}, time.Second)

	for range 3 {
		if err := tr.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	if got := tr.AvailableUIDs(); len(got) != 3 {
		t.Fatalf("expected stable membership across refreshes, got %v", got)
	}
}

func TestRefreshRecoversWorker(t *testing.T) {
	state := chain.NewState(1)
	state.SetMetagraph(metagraph(2))

	ft := &fakeTransport{dead: map[string]bool{"10.0.0.1:8091": true}}
	tr := NewTracker(state, ft, time.Second)

	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := tr.AvailableUIDs(); len(got) != 1 {
		t.Fatalf("expected 1 available, got %v", got)
	}

	// Worker comes back: next probe round restores it, no ban state.
	ft.dead = map[string]bool{}
	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := tr.AvailableUIDs(); len(got) != 2 {
		t.Fatalf("expected recovered worker to be available, got %v", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	state := chain.NewState(1)
	state.SetMetagraph(metagraph(2))
	tr := NewTracker(state, &fakeTransport{}, time.Second)

	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := tr.Snapshot()
	delete(snap, 0)
	if _, ok := tr.Get(0); !ok {
		t.Fatal("mutating a snapshot must not affect the tracker")
	}
}

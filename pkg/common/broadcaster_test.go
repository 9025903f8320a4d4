package common_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/savoirfairelinux/confcore/pkg/common"
)

func TestBroadcasterRunsJobsInOrder(t *testing.T) {
	b := common.StartBroadcaster(common.BroadcasterConfig{ChannelSize: 8})
	defer b.Stop()

	var order []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		if err := b.Dispatch(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		}); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("jobs did not complete in time")
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestBroadcasterRejectsAfterStop(t *testing.T) {
	b := common.StartBroadcaster(common.BroadcasterConfig{ChannelSize: 1})
	b.Stop()

	if err := b.Dispatch(func() {}); err != common.ErrBroadcasterClosed {
		t.Fatalf("expected ErrBroadcasterClosed, got %v", err)
	}
}

func BenchmarkBroadcaster(b *testing.B) {
	broadcaster := common.StartBroadcaster(common.BroadcasterConfig{ChannelSize: 1024})
	defer broadcaster.Stop()

	var counter atomic.Int64

	for n := 0; n < b.N; n++ {
		_ = broadcaster.Dispatch(func() { counter.Add(1) })
	}
}

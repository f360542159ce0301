package backend

import (
	"io"
	"log"
	"sync"
	"testing"
)

func quietHub(buffer int) *Hub {
	return NewHub(buffer, log.New(io.Discard, "", 0))
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := quietHub(4)
	a := h.Subscribe(0)
	b := h.Subscribe(0)

	h.Publish(ChangeEvent{Table: TableTasks, Op: OpInsert, RowID: "t1"})

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		ev := <-sub.Events()
		if ev.RowID != "t1" {
			t.Errorf("subscriber %s got %+v", name, ev)
		}
	}

	if n := h.Subscribers(); n != 2 {
		t.Errorf("Subscribers() = %d, want 2", n)
	}
	a.Close()
	a.Close()
	if n := h.Subscribers(); n != 1 {
		t.Errorf("Subscribers() after close = %d, want 1", n)
	}
	if _, ok := <-a.Events(); ok {
		t.Error("closed subscription channel still open")
	}
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := quietHub(2)
	sub := h.Subscribe(2)

	for i := 0; i < 5; i++ {
		h.Publish(ChangeEvent{Table: TableTasks, Op: OpUpdate})
	}

	if got := sub.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if got := len(sub.Events()); got != 2 {
		t.Errorf("buffered = %d, want 2", got)
	}
}

func TestHub_Close(t *testing.T) {
	h := quietHub(1)
	sub := h.Subscribe(0)
	h.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("subscription should be closed with the hub")
	}

	// Publishing and subscribing after close must not panic.
	h.Publish(ChangeEvent{Table: TableTasks})
	late := h.Subscribe(0)
	if _, ok := <-late.Events(); ok {
		t.Error("late subscription should be closed")
	}
	sub.Close()
}

func TestHub_ConcurrentPublishAndClose(t *testing.T) {
	h := quietHub(8)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Publish(ChangeEvent{Table: TableComments, Op: OpInsert})
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s := h.Subscribe(1)
				s.Close()
			}
		}()
	}
	wg.Wait()
}

package buffer

import (
	"sync"
	"testing"
)

func TestPushPop_Order(t *testing.T) {
	b := New[int](4)

	for i := 0; i < 10; i++ {
		if !b.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	for i := 0; i < 10; i++ {
		got, ok := b.Pop()
		if !ok {
			t.Fatalf("Pop() returned false at %d", i)
		}
		if got != i {
			t.Errorf("Pop() = %d, want %d", got, i)
		}
	}
}

func TestTryPop_Empty(t *testing.T) {
	b := New[string](4)

	if _, ok := b.TryPop(); ok {
		t.Error("TryPop() on empty buffer returned true")
	}
}

func TestGrow_PreservesOrder(t *testing.T) {
	b := New[int](2)

	// Interleave pushes and pops so the ring wraps before growing.
	b.Push(0)
	b.Push(1)
	b.Pop()
	for i := 2; i < 50; i++ {
		b.Push(i)
	}

	if b.Cap() <= 2 {
		t.Errorf("Cap() = %d, expected growth beyond 2", b.Cap())
	}

	want := 1
	for {
		got, ok := b.TryPop()
		if !ok {
			break
		}
		if got != want {
			t.Fatalf("TryPop() = %d, want %d", got, want)
		}
		want++
	}
	if want != 50 {
		t.Errorf("drained up to %d, want 50", want)
	}
}

func TestClose_DrainsThenSignals(t *testing.T) {
	b := New[int](4)
	b.Push(1)
	b.Push(2)
	b.Close()

	if b.Push(3) {
		t.Error("Push after Close returned true")
	}

	if v, ok := b.Pop(); !ok || v != 1 {
		t.Errorf("Pop() = %d, %v, want 1, true", v, ok)
	}
	if v, ok := b.Pop(); !ok || v != 2 {
		t.Errorf("Pop() = %d, %v, want 2, true", v, ok)
	}
	if _, ok := b.Pop(); ok {
		t.Error("Pop() after drain on closed buffer returned true")
	}
}

func TestClose_WakesBlockedPop(t *testing.T) {
	b := New[int](4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := b.Pop(); ok {
			t.Error("Pop() on closed empty buffer returned true")
		}
	}()

	b.Close()
	<-done
}

func TestDrain(t *testing.T) {
	b := New[int](8)
	for i := 0; i < 5; i++ {
		b.Push(i)
	}

	batch := b.Drain(3)
	if len(batch) != 3 {
		t.Fatalf("Drain(3) returned %d items", len(batch))
	}
	for i, v := range batch {
		if v != i {
			t.Errorf("batch[%d] = %d, want %d", i, v, i)
		}
	}

	rest := b.Drain(0)
	if len(rest) != 2 {
		t.Fatalf("Drain(0) returned %d items, want 2", len(rest))
	}
	if rest[0] != 3 || rest[1] != 4 {
		t.Errorf("rest = %v, want [3 4]", rest)
	}
}

func TestConcurrentProducers(t *testing.T) {
	b := New[int](4)

	var wg sync.WaitGroup
	const producers = 4
	const perProducer = 100

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Push(i)
			}
		}()
	}
	wg.Wait()

	if b.Len() != producers*perProducer {
		t.Errorf("Len() = %d, want %d", b.Len(), producers*perProducer)
	}

	stats := b.Stats()
	if stats.Enqueued != producers*perProducer {
		t.Errorf("Enqueued = %d, want %d", stats.Enqueued, producers*perProducer)
	}
}

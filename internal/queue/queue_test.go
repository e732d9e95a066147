package queue

import (
	"sync"
	"testing"
)

// pendingRow mimics the recorder's buffered database rows.
type pendingRow struct {
	SessionID uint
	Payload   string
}

func TestQueue_New(t *testing.T) {
	q := New[pendingRow]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_Push(t *testing.T) {
	q := New[pendingRow]()

	q.Push(pendingRow{SessionID: 1, Payload: "first"})
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}

	q.Push(pendingRow{SessionID: 2}, pendingRow{SessionID: 3})
	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}
}

func TestQueue_Pop(t *testing.T) {
	q := New[pendingRow]()

	// Pop from empty queue returns zero value
	result := q.Pop()
	if result.SessionID != 0 || result.Payload != "" {
		t.Errorf("expected zero value, got %+v", result)
	}

	q.Push(pendingRow{SessionID: 1, Payload: "first"}, pendingRow{SessionID: 2, Payload: "second"})
	first := q.Pop()
	if first.SessionID != 1 || first.Payload != "first" {
		t.Errorf("expected {1, first}, got %+v", first)
	}
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}
}

func TestQueue_Empty(t *testing.T) {
	q := New[pendingRow]()

	if !q.Empty() {
		t.Error("expected empty queue")
	}

	q.Push(pendingRow{SessionID: 1})
	if q.Empty() {
		t.Error("expected non-empty queue")
	}

	q.Pop()
	if !q.Empty() {
		t.Error("expected empty queue after pop")
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New[pendingRow]()
	q.Push(pendingRow{SessionID: 1}, pendingRow{SessionID: 2}, pendingRow{SessionID: 3})

	q.Clear()

	if !q.Empty() {
		t.Error("expected empty queue after clear")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New[pendingRow]()
	q.Push(pendingRow{SessionID: 1}, pendingRow{SessionID: 2}, pendingRow{SessionID: 3})

	result := q.Drain()

	if len(result) != 3 {
		t.Errorf("expected 3 items, got %d", len(result))
	}
	if result[0].SessionID != 1 || result[1].SessionID != 2 || result[2].SessionID != 3 {
		t.Errorf("unexpected items: %+v", result)
	}
	if !q.Empty() {
		t.Error("expected empty queue after drain")
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[pendingRow]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			q.Push(pendingRow{SessionID: id})
		}(uint(i))
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Errorf("expected 100 items, got %d", q.Len())
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Pop()
		}()
	}
	wg.Wait()

	if q.Len() != 50 {
		t.Errorf("expected 50 items after pops, got %d", q.Len())
	}
}

func TestQueue_ConcurrentDrain(t *testing.T) {
	q := New[pendingRow]()

	for i := 0; i < 100; i++ {
		q.Push(pendingRow{SessionID: uint(i)})
	}

	var wg sync.WaitGroup
	results := make(chan []pendingRow, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.Drain()
		}()
	}
	wg.Wait()
	close(results)

	// Every item lands in exactly one drained batch.
	total := 0
	for r := range results {
		total += len(r)
	}
	if total != 100 {
		t.Errorf("expected total 100 items, got %d", total)
	}
}

func TestQueue_StringType(t *testing.T) {
	q := New[string]()
	q.Push("hello", "world")

	first := q.Pop()
	if first != "hello" {
		t.Errorf("expected 'hello', got '%s'", first)
	}
}

func TestQueue_IntType(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3, 4, 5)

	sum := 0
	for !q.Empty() {
		sum += q.Pop()
	}
	if sum != 15 {
		t.Errorf("expected sum 15, got %d", sum)
	}
}

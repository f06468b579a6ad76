package queue

import (
	"sync"
	"testing"
)

func TestPushPop(t *testing.T) {
	q := New[int]()
	if !q.Empty() {
		t.Error("new queue should be empty")
	}
	q.Push(1, 2, 3)
	if q.Len() != 3 {
		t.Errorf("len = %d, want 3", q.Len())
	}
	for want := 1; want <= 3; want++ {
		if got := q.Pop(); got != want {
			t.Errorf("Pop = %d, want %d", got, want)
		}
	}
	if got := q.Pop(); got != 0 {
		t.Errorf("Pop on empty = %d, want zero value", got)
	}
}

func TestGetAndEmpty(t *testing.T) {
	q := New[string]()
	q.Push("a", "b")
	items := q.GetAndEmpty()
	if len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Errorf("GetAndEmpty = %v", items)
	}
	if !q.Empty() {
		t.Error("queue should be empty after GetAndEmpty")
	}
}

func TestClear(t *testing.T) {
	q := New[int]()
	q.Push(1, 2)
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("len after Clear = %d, want 0", q.Len())
	}
}

func TestConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(j)
			}
		}()
	}
	wg.Wait()
	if q.Len() != 1000 {
		t.Errorf("len = %d, want 1000", q.Len())
	}
}

package cache

import (
	"errors"
	"sync"
	"testing"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string, int](0)

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache should miss")
	}
	c.Set("a", 1)
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v, want 2, true", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](2)
	c.Set(1, 10)
	c.Set(2, 20)
	c.Get(1) // 2 is now oldest
	c.Set(3, 30)

	if _, ok := c.Get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	for _, k := range []int{1, 3} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("key %d should be cached", k)
		}
	}
	if s := c.Stats(); s.Evictions != 1 || s.Len != 2 || s.Limit != 2 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestCache_GetOrCreate(t *testing.T) {
	c := New[string, int](4)
	calls := 0
	create := func() (int, error) {
		calls++
		return 7, nil
	}

	for range 3 {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 7 {
			t.Fatalf("GetOrCreate = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
	if s := c.Stats(); s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Stats = %+v, want 2 hits 1 miss", s)
	}
}

func TestCache_GetOrCreateError(t *testing.T) {
	c := New[string, int](4)
	boom := errors.New("boom")

	if _, err := c.GetOrCreate("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Error("failed creation must not be cached")
	}
}

func TestCache_DeleteClear(t *testing.T) {
	c := New[int, int](0)
	for i := range 5 {
		c.Set(i, i)
	}
	if !c.Delete(2) || c.Delete(2) {
		t.Error("Delete should report presence once")
	}
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	c.Set(9, 9)
	if v, ok := c.Get(9); !ok || v != 9 {
		t.Error("cache unusable after Clear")
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int, int](8)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				_, _ = c.GetOrCreate((g+i)%16, func() (int, error) { return i, nil })
			}
		}()
	}
	wg.Wait()
	if c.Len() > 8 {
		t.Errorf("Len = %d exceeds limit", c.Len())
	}
}

func TestLRUList(t *testing.T) {
	var l lruList[int]
	a := l.pushFront(1)
	l.pushFront(2)
	c := l.pushFront(3) // 3 2 1

	l.moveToFront(a) // 1 3 2
	l.moveToFront(a)
	if k, _ := l.removeOldest(); k != 2 {
		t.Errorf("oldest = %d, want 2", k)
	}
	l.remove(c) // 1
	if l.len != 1 || l.head != a || l.tail != a {
		t.Errorf("list not reduced to single node")
	}
	l.removeOldest()
	if _, ok := l.removeOldest(); ok || l.head != nil || l.tail != nil {
		t.Error("empty list should report no oldest")
	}
}

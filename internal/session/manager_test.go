package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestHistoryGetUnknownIsEmpty(t *testing.T) {
	h := NewHistory(10, 0)
	if got := h.Get("nobody"); len(got) != 0 {
		t.Fatalf("Get() = %+v, want empty", got)
	}
}

func TestHistorySlidingWindow(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 25} {
		t.Run(fmt.Sprintf("appends=%d", n), func(t *testing.T) {
			h := NewHistory(10, 0)
			for i := 0; i < n; i++ {
				h.Append("s1", Turn{User: fmt.Sprintf("u%d", i), AI: fmt.Sprintf("a%d", i)})
			}
			got := h.Get("s1")
			want := min(n, 10)
			if len(got) != want {
				t.Fatalf("len(Get()) = %d, want %d", len(got), want)
			}
			for i, turn := range got {
				wantUser := fmt.Sprintf("u%d", n-want+i)
				if turn.User != wantUser {
					t.Fatalf("turn[%d].User = %q, want %q", i, turn.User, wantUser)
				}
			}
		})
	}
}

func TestHistoryGetReturnsCopy(t *testing.T) {
	h := NewHistory(10, 0)
	h.Append("s1", Turn{User: "hello", AI: "hi there"})

	got := h.Get("s1")
	got[0].AI = "mutated"

	if again := h.Get("s1"); again[0].AI != "hi there" {
		t.Fatalf("stored turn mutated through Get(): %+v", again[0])
	}
}

func TestHistorySessionsAreIndependent(t *testing.T) {
	h := NewHistory(2, 0)
	h.Append("a", Turn{User: "a1"})
	h.Append("b", Turn{User: "b1"})
	h.Append("a", Turn{User: "a2"})
	h.Append("a", Turn{User: "a3"})

	if got := h.Get("b"); len(got) != 1 || got[0].User != "b1" {
		t.Fatalf("session b = %+v, want [b1]", got)
	}
	if got := h.Get("a"); len(got) != 2 || got[0].User != "a2" || got[1].User != "a3" {
		t.Fatalf("session a = %+v, want [a2 a3]", got)
	}

	h.Evict("a")
	if got := h.Get("a"); len(got) != 0 {
		t.Fatalf("evicted session still has turns: %+v", got)
	}
	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", h.Count())
	}
}

func TestHistoryConcurrentAppendsSameSession(t *testing.T) {
	h := NewHistory(100, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append("shared", Turn{User: fmt.Sprintf("u%d", i)})
		}(i)
	}
	wg.Wait()

	if got := h.Get("shared"); len(got) != 50 {
		t.Fatalf("len(Get()) = %d, want 50", len(got))
	}
}

func TestHistoryJanitorExpiresInactive(t *testing.T) {
	h := NewHistory(10, 30*time.Millisecond)
	expired := make(chan string, 1)
	h.SetExpireHook(func(id string) { expired <- id })
	h.Append("s1", Turn{User: "hello"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != "s1" {
			t.Fatalf("expired id = %q, want s1", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("janitor did not expire idle session")
	}
	if got := h.Get("s1"); len(got) != 0 {
		t.Fatalf("expired session still has turns: %+v", got)
	}
}

func TestHistoryJanitorDisabledWithoutTTL(t *testing.T) {
	h := NewHistory(10, 0)
	h.Append("s1", Turn{User: "hello"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartJanitor(ctx, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if got := h.Get("s1"); len(got) != 1 {
		t.Fatalf("session evicted without ttl: %+v", got)
	}
}

package paginate

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func staticLoader(items []int, calls *atomic.Int32) Loader[int] {
	return func(context.Context) ([]int, error) {
		if calls != nil {
			calls.Add(1)
		}
		return items, nil
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New[int](nil, 10); err == nil {
		t.Error("nil loader should be rejected")
	}
	if _, err := New(staticLoader(nil, nil), 0); err == nil {
		t.Error("zero page size should be rejected")
	}
}

func TestRequestNextPage_CoversListOnce(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{1, 9, 10, 11, 25} {
		for _, size := range []int{1, 3, 10} {
			var calls atomic.Int32
			s, err := New(staticLoader(seq(n), &calls), size)
			if err != nil {
				t.Fatalf("new: %v", err)
			}

			var all []int
			pages := 0
			lastStart := -1
			for {
				page, ok, err := s.RequestNextPage(ctx)
				if err != nil {
					t.Fatalf("n=%d size=%d: %v", n, size, err)
				}
				if !ok {
					break
				}
				if page.Index != pages || page.Start <= lastStart || page.Start != len(all) {
					t.Fatalf("n=%d size=%d: unexpected page %+v after %d items", n, size, page, len(all))
				}
				lastStart = page.Start
				all = append(all, page.Items...)
				pages++
			}

			want := (n + size - 1) / size
			if pages != want {
				t.Errorf("n=%d size=%d: got %d pages, want %d", n, size, pages, want)
			}
			if !slices.Equal(all, seq(n)) {
				t.Errorf("n=%d size=%d: concatenation = %v", n, size, all)
			}
			if s.HasMore() {
				t.Errorf("n=%d size=%d: HasMore should be false", n, size)
			}
			if _, ok, _ := s.RequestNextPage(ctx); ok {
				t.Errorf("n=%d size=%d: call after exhaustion should be a no-op", n, size)
			}
			if calls.Load() != 1 {
				t.Errorf("n=%d size=%d: loader called %d times", n, size, calls.Load())
			}
			if !slices.Equal(s.Visible(), seq(n)) {
				t.Errorf("n=%d size=%d: Visible() = %v", n, size, s.Visible())
			}
		}
	}
}

func TestRequestNextPage_EmptyList(t *testing.T) {
	s, _ := New(staticLoader(nil, nil), 10)
	page, ok, err := s.RequestNextPage(context.Background())
	if err != nil || ok || len(page.Items) != 0 {
		t.Fatalf("empty list produced page %+v ok=%v err=%v", page, ok, err)
	}
	if !s.Empty() || s.HasMore() || !s.Loaded() {
		t.Errorf("Empty=%v HasMore=%v Loaded=%v", s.Empty(), s.HasMore(), s.Loaded())
	}
}

func TestRequestNextPage_SingleFetchOutstanding(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) ([]int, error) {
		calls.Add(1)
		close(entered)
		<-release
		return seq(30), nil
	}
	s, _ := New(load, 10)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		_, ok, _ := s.RequestNextPage(ctx)
		done <- ok
	}()
	<-entered

	if s.State() != Fetching {
		t.Fatalf("State() = %v, want fetching", s.State())
	}
	for range 5 {
		if _, ok, err := s.RequestNextPage(ctx); ok || err != nil {
			t.Fatalf("trigger while fetching should be a no-op, got ok=%v err=%v", ok, err)
		}
		if _, ok, _ := s.NearEnd(ctx); ok {
			t.Fatal("near-end signal while fetching should be a no-op")
		}
	}

	close(release)
	if !<-done {
		t.Fatal("first request should deliver a page")
	}
	if calls.Load() != 1 {
		t.Errorf("loader called %d times", calls.Load())
	}
	if got := len(s.Visible()); got != 10 {
		t.Errorf("visible = %d, want 10", got)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want idle", s.State())
	}
}

func TestRequestNextPage_ConcurrentCallers(t *testing.T) {
	var inflight, maxInflight atomic.Int32
	load := func(context.Context) ([]int, error) {
		n := inflight.Add(1)
		if n > maxInflight.Load() {
			maxInflight.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return seq(100), nil
	}
	s, _ := New(load, 7)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		seen  = map[int]bool{}
		wg    sync.WaitGroup
		dupes atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s.HasMore() {
				page, ok, err := s.RequestNextPage(ctx)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if !ok {
					continue
				}
				mu.Lock()
				if seen[page.Index] {
					dupes.Add(1)
				}
				seen[page.Index] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if maxInflight.Load() != 1 {
		t.Errorf("max concurrent loads = %d", maxInflight.Load())
	}
	if dupes.Load() != 0 {
		t.Errorf("%d pages delivered twice", dupes.Load())
	}
	if len(seen) != 15 {
		t.Errorf("delivered %d distinct pages, want 15", len(seen))
	}
	if !slices.Equal(s.Visible(), seq(100)) {
		t.Error("visible sequence out of order")
	}
}

func TestRequestNextPage_FailureThenRetry(t *testing.T) {
	boom := errors.New("offline")
	var calls atomic.Int32
	load := func(context.Context) ([]int, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return seq(5), nil
	}
	s, _ := New(load, 2)
	ctx := context.Background()

	_, ok, err := s.RequestNextPage(ctx)
	if !errors.Is(err, boom) || ok {
		t.Fatalf("first request: ok=%v err=%v", ok, err)
	}
	if !s.HasMore() || s.State() != Idle || s.Loaded() {
		t.Fatalf("after failure: HasMore=%v State=%v Loaded=%v", s.HasMore(), s.State(), s.Loaded())
	}

	page, ok, err := s.RequestNextPage(ctx)
	if err != nil || !ok || !slices.Equal(page.Items, []int{0, 1}) {
		t.Fatalf("retry: page=%+v ok=%v err=%v", page, ok, err)
	}
}

func TestClose_DiscardsInFlightLoad(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	load := func(context.Context) ([]int, error) {
		close(entered)
		<-release
		return seq(10), nil
	}
	s, _ := New(load, 5)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		_, ok, _ := s.RequestNextPage(ctx)
		done <- ok
	}()
	<-entered
	s.Close()
	close(release)

	if <-done {
		t.Fatal("page delivered after Close")
	}
	if len(s.Visible()) != 0 {
		t.Errorf("visible = %v, want none", s.Visible())
	}
	if _, ok, _ := s.RequestNextPage(ctx); ok {
		t.Error("request after Close should be a no-op")
	}
}

func TestBackingListIsCopied(t *testing.T) {
	src := seq(4)
	s, _ := New(staticLoader(src, nil), 2)
	ctx := context.Background()

	first, _, _ := s.RequestNextPage(ctx)
	src[2] = 99
	first.Items[0] = -1

	second, _, _ := s.RequestNextPage(ctx)
	if !slices.Equal(second.Items, []int{2, 3}) {
		t.Errorf("second page = %v, backing list was aliased", second.Items)
	}
	if s.Visible()[0] != 0 {
		t.Errorf("visible aliased page items: %v", s.Visible())
	}
}

func TestPages(t *testing.T) {
	s, _ := New(staticLoader(seq(23), nil), 10)

	var sizes []int
	for page, err := range s.Pages(context.Background()) {
		if err != nil {
			t.Fatalf("pages: %v", err)
		}
		sizes = append(sizes, len(page.Items))
	}
	if !slices.Equal(sizes, []int{10, 10, 3}) {
		t.Errorf("page sizes = %v", sizes)
	}

	failing, _ := New(func(context.Context) ([]int, error) { return nil, errors.New("down") }, 10)
	var gotErr error
	for _, err := range failing.Pages(context.Background()) {
		gotErr = err
	}
	if gotErr == nil {
		t.Error("Pages should yield the load error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fresh, _ := New(staticLoader(seq(5), nil), 2)
	for _, err := range fresh.Pages(ctx) {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled Pages yielded %v", err)
		}
	}
}

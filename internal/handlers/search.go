package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/seuros/mfdash/internal/filterselect"
	"github.com/seuros/mfdash/internal/search"
)

type viewResult = search.Result[filterselect.View]

// liveSearch turns the debouncer's fire-and-forget delivery into a blocking
// call per request. A request whose query is superseded before its result is
// delivered returns without one.
type liveSearch struct {
	deb *search.Debouncer[filterselect.View]

	mu      sync.Mutex
	waiters map[uint64]chan viewResult
	closed  bool
}

func newLiveSearch(ctx context.Context, delay time.Duration, fetch search.Fetcher[filterselect.View]) *liveSearch {
	ls := &liveSearch{waiters: make(map[uint64]chan viewResult)}
	ls.deb = search.NewDebouncer(ctx, delay, fetch, ls.deliver)
	return ls
}

func (ls *liveSearch) deliver(res viewResult) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ch, ok := ls.waiters[res.Token]; ok {
		ch <- res
		close(ch)
		delete(ls.waiters, res.Token)
	}
}

// await schedules query and waits for its result. ok is false when a newer
// query superseded this one or the search was closed.
func (ls *liveSearch) await(ctx context.Context, query string) (res viewResult, ok bool, err error) {
	ch := make(chan viewResult, 1)

	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return viewResult{}, false, nil
	}
	token := ls.deb.Search(query)
	for t, older := range ls.waiters {
		if t < token {
			close(older)
			delete(ls.waiters, t)
		}
	}
	ls.waiters[token] = ch
	ls.mu.Unlock()

	select {
	case res, ok = <-ch:
		if !ok {
			return viewResult{Token: token}, false, nil
		}
		return res, true, nil
	case <-ctx.Done():
		ls.mu.Lock()
		if ls.waiters[token] == ch {
			delete(ls.waiters, token)
		}
		ls.mu.Unlock()
		return viewResult{Token: token}, false, ctx.Err()
	}
}

// latest is the generation of the newest query.
func (ls *liveSearch) latest() uint64 { return ls.deb.Latest() }

func (ls *liveSearch) close() {
	ls.deb.Close()
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.closed = true
	for t, ch := range ls.waiters {
		close(ch)
		delete(ls.waiters, t)
	}
}

package cli

import "strings"

// tickerQueue yields the tickers a batch should run. An explicit argument
// list is fixed up front; a watchlist-backed queue re-reads the watchlist
// before every pull, so editing the config file mid-batch adds or drops
// tickers for the runs that have not started yet.
type tickerQueue struct {
	explicit  []string
	watchlist func() []string
	done      map[string]bool
}

func newTickerQueue(explicit []string, watchlist func() []string) *tickerQueue {
	return &tickerQueue{
		explicit:  explicit,
		watchlist: watchlist,
		done:      make(map[string]bool),
	}
}

// Next returns the next ticker to run, normalized to upper case. It reports
// false when the queue is exhausted.
func (q *tickerQueue) Next() (string, bool) {
	for len(q.explicit) > 0 {
		ticker := normalizeTicker(q.explicit[0])
		q.explicit = q.explicit[1:]
		if ticker == "" || q.done[ticker] {
			continue
		}
		q.done[ticker] = true
		return ticker, true
	}

	if q.watchlist == nil {
		return "", false
	}
	for _, raw := range q.watchlist() {
		ticker := normalizeTicker(raw)
		if ticker == "" || q.done[ticker] {
			continue
		}
		q.done[ticker] = true
		return ticker, true
	}
	return "", false
}

func normalizeTicker(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

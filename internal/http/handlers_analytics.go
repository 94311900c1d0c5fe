package http

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/state"
)

type summaryResponse struct {
	Totals         ledger.Totals `json:"totals"`
	OverallBalance float64       `json:"overallBalance"`
}

type balancesResponse struct {
	Balances map[string]float64 `json:"balances"`
	Overall  float64            `json:"overall"`
}

type budgetResponse struct {
	Budget core.Budget         `json:"budget"`
	Usage  ledger.BudgetReport `json:"usage"`
}

// view reads the store version before the snapshot, so a cached value is
// never older than the version in its key.
func view(st *state.Store) (state.State, uint64) {
	version := st.Version()
	return st.Snapshot(), version
}

// serveCached answers from the analytics cache, computing on a miss.
func (s *Server) serveCached(w http.ResponseWriter, st *state.Store, version uint64, parts []string, compute func() any) {
	key := cache.Key(st.Namespace(), version, parts...)
	v, hit, _ := cache.GetOrCompute[any](s.analytics, key, func() (any, error) {
		return compute(), nil
	})
	if hit {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		w.Header().Set("X-Cache", "HIT")
	} else {
		atomic.AddInt64(&s.appMetrics.cacheMisses, 1)
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, version := view(st)
	month, err := monthParam(r.URL.Query(), snap.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts := st.Accounts()
	s.serveCached(w, st, version, []string{"summary", month}, func() any {
		return summaryResponse{
			Totals:         ledger.MonthlyTotals(snap.Records, month, accounts),
			OverallBalance: ledger.OverallBalance(ledger.Balances(snap.Records), accounts),
		}
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, version := view(st)
	accounts := st.Accounts()
	s.serveCached(w, st, version, []string{"balances"}, func() any {
		b := ledger.Balances(snap.Records)
		return balancesResponse{Balances: b, Overall: ledger.OverallBalance(b, accounts)}
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r.URL.Query(), "months", ledger.DefaultSeriesMonths)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, version := view(st)
	accounts := st.Accounts()
	s.serveCached(w, st, version, []string{"series", strconv.Itoa(n)}, func() any {
		return ledger.TimeSeries(snap.Records, accounts, n)
	})
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	q, err := ParseBreakdownQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, version := view(st)
	parts := []string{"breakdown", q.From, q.To, q.Account, string(q.GroupBy), q.Category}
	s.serveCached(w, st, version, parts, func() any {
		return ledger.Breakdown(snap.Records, q)
	})
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, version := view(st)
	month, err := monthParam(r.URL.Query(), snap.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.serveCached(w, st, version, []string{"budget", month}, func() any {
		return budgetResponse{
			Budget: snap.Budget,
			Usage:  ledger.BudgetUsage(snap.Records, month, snap.Budget, s.buckets),
		}
	})
}

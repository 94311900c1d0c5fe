package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/state"
)

// recordRequest is the body of POST /api/records. Empty date and time
// default to now.
type recordRequest struct {
	Type        string `json:"type"`
	Account     string `json:"account"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Note        string `json:"note"`
}

type transferRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Note        string `json:"note"`
}

// deleteRequest removes records by id. Pairs defaults to true so a transfer
// leg never outlives its counterpart unless the caller opts out.
type deleteRequest struct {
	IDs   []string `json:"ids"`
	Pairs *bool    `json:"pairs"`
}

func (d deleteRequest) withPairs() bool {
	return d.Pairs == nil || *d.Pairs
}

func stamp(date, clock string, now time.Time) (string, string) {
	if date == "" {
		date = now.Format(core.DateLayout)
	}
	if clock == "" {
		clock = now.Format(core.TimeLayout)
	}
	return date, clock
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q, err := ParseRecordQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.Run(st.Snapshot().Records, q))
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := core.ParseTxType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	date, clock := stamp(req.Date, req.Time, time.Now())
	tx := core.Tx{
		ID:          state.NewID(),
		Type:        t,
		Account:     sanitizeInput(req.Account),
		Date:        date,
		Time:        clock,
		Amount:      core.RoundCents(core.SignedAmount(t, float64(req.Amount))),
		Category:    sanitizeInput(req.Category),
		Subcategory: sanitizeInput(req.Subcategory),
		Note:        sanitizeInput(req.Note),
	}
	if _, err := st.Dispatch(r.Context(), state.AddRecord{Tx: tx}); err != nil {
		writeError(w, r, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.recordsCreated, 1)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Record created",
		log.NewFields().WithRecord(tx.ID, string(tx.Type), tx.Account, tx.Amount, tx.Category).ToSlice()...)
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	date, clock := stamp(req.Date, req.Time, time.Now())
	spec := core.TransferSpec{
		ID:          state.NewID(),
		From:        sanitizeInput(req.From),
		To:          sanitizeInput(req.To),
		Date:        date,
		Time:        clock,
		Amount:      core.RoundCents(float64(req.Amount)),
		Category:    sanitizeInput(req.Category),
		Subcategory: sanitizeInput(req.Subcategory),
		Note:        sanitizeInput(req.Note),
	}
	if _, err := st.Dispatch(r.Context(), state.AddTransfer{Spec: spec}); err != nil {
		writeError(w, r, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.recordsCreated, 2)
	out, in := spec.Legs()
	writeJSON(w, http.StatusCreated, map[string]any{
		"transferId": spec.ID,
		"legs":       []core.Tx{out, in},
	})
}

// handleDeleteRecords takes ids from the JSON body or repeated ?id=
// parameters. Transfer legs are removed together unless pairs=false.
func (s *Server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	pairs := boolParam(r.URL.Query(), "pairs", true)
	req := deleteRequest{IDs: r.URL.Query()["id"], Pairs: &pairs}
	if len(req.IDs) == 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	s.deleteRecords(w, r, req)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	pairs := boolParam(r.URL.Query(), "pairs", true)
	s.deleteRecords(w, r, deleteRequest{IDs: []string{r.PathValue("id")}, Pairs: &pairs})
}

// deleteRecords removes records locally and, when signed in with sync
// configured, from the remote store. A remote failure keeps the local
// delete and is reported as 502.
func (s *Server) deleteRecords(w http.ResponseWriter, r *http.Request, req deleteRequest) {
	if len(req.IDs) == 0 {
		writeError(w, r, fmt.Errorf("%w: no ids given", errBadRequest))
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	removed, err := st.DeleteRecords(r.Context(), req.IDs, req.withPairs())
	if err != nil {
		writeError(w, r, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.recordsDeleted, int64(len(removed)))
	if removed == nil {
		removed = []string{}
	}

	if sess, ok := auth.SessionFromContext(r.Context()); ok && s.sync != nil {
		if err := s.sync.DeleteRemote(r.Context(), sess.UserID, removed); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

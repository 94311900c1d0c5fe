package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/state"
)

type budgetRequest struct {
	Essentials    Amount `json:"essentials"`
	Discretionary Amount `json:"discretionary"`
	Savings       Amount `json:"savings"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type goalRequest struct {
	Name          string `json:"name"`
	TargetAmount  Amount `json:"target_amount"`
	CurrentAmount Amount `json:"current_amount"`
	TargetDate    string `json:"target_date"`
}

// dispatch applies a to the caller's store and returns the new state.
func (s *Server) dispatch(r *http.Request, a state.Action) (state.State, error) {
	st, err := s.store(r)
	if err != nil {
		return state.State{}, err
	}
	return st.Dispatch(r.Context(), a)
}

func (s *Server) handlePutBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	next, err := s.dispatch(r, state.SetBudget{Budget: core.Budget{
		Essentials:    core.RoundCents(float64(req.Essentials)),
		Discretionary: core.RoundCents(float64(req.Discretionary)),
		Savings:       core.RoundCents(float64(req.Savings)),
	}})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next.Budget)
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"month": st.Snapshot().Month})
}

func (s *Server) handlePutMonth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Month string `json:"month"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	next, err := s.dispatch(r, state.SetMonth{Month: req.Month})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"month": next.Month})
}

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot().Tags)
}

// tagAction decodes {"name": ...} and dispatches the action built from it.
func (s *Server) tagAction(w http.ResponseWriter, r *http.Request, status int, build func(name string) state.Action) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	next, err := s.dispatch(r, build(sanitizeInput(req.Name)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, next.Tags)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	s.tagAction(w, r, http.StatusCreated, func(name string) state.Action {
		return state.AddCategory{Name: name}
	})
}

func (s *Server) handleAddSubcategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	s.tagAction(w, r, http.StatusCreated, func(name string) state.Action {
		return state.AddSubcategory{Category: category, Name: name}
	})
}

// handleRenameCategory renames the category in the path to the body's
// name. Records using it are rewritten.
func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	from := r.PathValue("category")
	s.tagAction(w, r, http.StatusOK, func(name string) state.Action {
		return state.RenameCategory{From: from, To: name}
	})
}

func (s *Server) handleRenameSubcategory(w http.ResponseWriter, r *http.Request) {
	category, from := r.PathValue("category"), r.PathValue("subcategory")
	s.tagAction(w, r, http.StatusOK, func(name string) state.Action {
		return state.RenameSubcategory{Category: category, From: from, To: name}
	})
}

func goalStatuses(goals []core.Goal) []ledger.GoalStatus {
	out := make([]ledger.GoalStatus, 0, len(goals))
	for _, g := range goals {
		out = append(out, ledger.GoalProgress(g))
	}
	return out
}

func findGoal(goals []core.Goal, id string) (core.Goal, bool) {
	for _, g := range goals {
		if g.ID == id {
			return g, true
		}
	}
	return core.Goal{}, false
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goalStatuses(st.Snapshot().Goals))
}

func (req goalRequest) goal(id string) core.Goal {
	return core.Goal{
		ID:            id,
		Name:          sanitizeInput(req.Name),
		TargetAmount:  core.RoundCents(float64(req.TargetAmount)),
		CurrentAmount: core.RoundCents(float64(req.CurrentAmount)),
		TargetDate:    req.TargetDate,
	}
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g := req.goal(state.NewID())
	if _, err := s.dispatch(r, state.SaveGoal{Goal: g}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ledger.GoalProgress(g))
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.store(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, ok := findGoal(st.Snapshot().Goals, id); !ok {
		writeError(w, r, state.ErrGoalNotFound)
		return
	}
	g := req.goal(id)
	if _, err := st.Dispatch(r.Context(), state.SaveGoal{Goal: g}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger.GoalProgress(g))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if _, err := s.dispatch(r, state.DeleteGoal{ID: r.PathValue("id")}); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContributeGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Amount Amount `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	next, err := s.dispatch(r, state.ContributeGoal{ID: id, Amount: core.RoundCents(float64(req.Amount))})
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, _ := findGoal(next.Goals, id)
	writeJSON(w, http.StatusOK, ledger.GoalProgress(g))
}

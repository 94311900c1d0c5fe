package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

// Blob keys in local persistent storage.
const (
	KeyRecords = "records"
	KeyTags    = "tags"
	KeyMonth   = "month"
	KeyBudget  = "budget"
	KeyGoals   = "goals"
)

var ErrCorruptBlob = errors.New("corrupt stored blob")

// Encode serializes the blobs flagged in changed. Records and goals are
// JSON arrays, tags and budget JSON objects, the month a plain string.
func Encode(s State, changed Changed) (map[string][]byte, error) {
	out := map[string][]byte{}
	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = b
		return nil
	}
	if changed.Has(ChangedRecords) {
		records := s.Records
		if records == nil {
			records = []core.Tx{}
		}
		if err := put(KeyRecords, records); err != nil {
			return nil, err
		}
	}
	if changed.Has(ChangedTags) {
		if err := put(KeyTags, s.Tags); err != nil {
			return nil, err
		}
	}
	if changed.Has(ChangedBudget) {
		if err := put(KeyBudget, s.Budget); err != nil {
			return nil, err
		}
	}
	if changed.Has(ChangedGoals) {
		goals := s.Goals
		if goals == nil {
			goals = []core.Goal{}
		}
		if err := put(KeyGoals, goals); err != nil {
			return nil, err
		}
	}
	if changed.Has(ChangedMonth) {
		out[KeyMonth] = []byte(s.Month)
	}
	return out, nil
}

// Decode overlays the stored blobs on base. Keys that are missing keep the
// base value. Keys that fail to decode also keep the base value and are
// reported in the returned error.
func Decode(blobs map[string][]byte, base State) (State, error) {
	s := base.Clone()
	var errs []error
	get := func(key string, dst any) bool {
		b, ok := blobs[key]
		if !ok || len(b) == 0 {
			return false
		}
		if err := json.Unmarshal(b, dst); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCorruptBlob, key, err))
			return false
		}
		return true
	}

	var records []core.Tx
	if get(KeyRecords, &records) && records != nil {
		s.Records = records
	}
	var tags core.Taxonomy
	if get(KeyTags, &tags) && tags != nil {
		s.Tags = tags
	}
	var budget core.Budget
	if get(KeyBudget, &budget) {
		s.Budget = budget
	}
	var goals []core.Goal
	if get(KeyGoals, &goals) && goals != nil {
		s.Goals = goals
	}
	if m, ok := blobs[KeyMonth]; ok {
		if err := core.ValidateMonth(string(m)); err == nil {
			s.Month = string(m)
		} else if len(m) > 0 {
			errs = append(errs, fmt.Errorf("%w: %s: %q", ErrCorruptBlob, KeyMonth, m))
		}
	}
	return s, errors.Join(errs...)
}

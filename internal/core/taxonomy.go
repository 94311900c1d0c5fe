package core

import "strings"

// Taxonomy maps a category to its ordered subcategories.
type Taxonomy map[string][]string

// DefaultTaxonomy seeds a fresh session.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		"Housing":       {"Rent", "Utilities", "Internet"},
		"Food":          {"Groceries", "Restaurants"},
		"Transport":     {"Fuel", "Public transport"},
		"Health":        {"Pharmacy", "Doctor"},
		"Leisure":       {"Travel", "Hobbies"},
		"Income":        {"Salary", "Other"},
		SavingsCategory: {"Emergency fund", "Investments"},
	}
}

// Clone returns a deep copy.
func (t Taxonomy) Clone() Taxonomy {
	out := make(Taxonomy, len(t))
	for k, v := range t {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (t Taxonomy) AddCategory(name string) (Taxonomy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return t, ErrEmptyName
	}
	if _, ok := t[name]; ok {
		return t, ErrDuplicateTag
	}
	out := t.Clone()
	out[name] = []string{}
	return out, nil
}

func (t Taxonomy) AddSubcategory(category, name string) (Taxonomy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return t, ErrEmptyName
	}
	subs, ok := t[category]
	if !ok {
		return t, ErrUnknownCategory
	}
	for _, s := range subs {
		if s == name {
			return t, ErrDuplicateTag
		}
	}
	out := t.Clone()
	out[category] = append(out[category], name)
	return out, nil
}

// RenameCategory renames a category keeping its subcategories.
func (t Taxonomy) RenameCategory(from, to string) (Taxonomy, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return t, ErrEmptyName
	}
	subs, ok := t[from]
	if !ok {
		return t, ErrUnknownCategory
	}
	if from == to {
		return t, nil
	}
	if _, exists := t[to]; exists {
		return t, ErrDuplicateTag
	}
	out := t.Clone()
	delete(out, from)
	out[to] = append([]string(nil), subs...)
	return out, nil
}

// RenameSubcategory renames a subcategory in place, keeping its position.
func (t Taxonomy) RenameSubcategory(category, from, to string) (Taxonomy, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return t, ErrEmptyName
	}
	subs, ok := t[category]
	if !ok {
		return t, ErrUnknownCategory
	}
	idx := -1
	for i, s := range subs {
		if s == to && s != from {
			return t, ErrDuplicateTag
		}
		if s == from {
			idx = i
		}
	}
	if idx < 0 {
		return t, ErrUnknownCategory
	}
	out := t.Clone()
	out[category][idx] = to
	return out, nil
}

package editor

import (
	"fmt"

	"contractgen/pkg/contractapi"
)

// Filter selects which variable kinds a listing shows.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterScalar Filter = "scalar"
	FilterList   Filter = "list"
	FilterTable  Filter = "table"
)

// ParseFilter accepts all|scalar|list|table; empty means all.
func ParseFilter(raw string) (Filter, error) {
	switch Filter(raw) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterScalar, FilterList, FilterTable:
		return Filter(raw), nil
	}
	return "", fmt.Errorf("editor: unknown filter %q", raw)
}

func (f Filter) matches(k contractapi.Kind) bool {
	switch f {
	case FilterScalar:
		return k == contractapi.KindScalar
	case FilterList:
		return k == contractapi.KindList
	case FilterTable:
		return k == contractapi.KindTable
	default:
		return true
	}
}

// FilterVariables returns the variables whose kind matches f, preserving
// order. The input slice is not modified.
func FilterVariables(vars []contractapi.Variable, f Filter) []contractapi.Variable {
	out := make([]contractapi.Variable, 0, len(vars))
	for _, v := range vars {
		if f.matches(v.Kind()) {
			out = append(out, v)
		}
	}
	return out
}

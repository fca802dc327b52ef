// Package target implements the sinks extraction writes entries to: the
// Postgres store and flat CSV exports.
package target

import "github.com/cloo-solutions/coverstats/internal/domain"

// kindFilter is the outcome kind allow-list shared by every target. An
// empty list accepts all kinds.
type kindFilter struct {
	allowed map[domain.OutcomeKind]bool
}

func (f *kindFilter) SetAllowedKinds(kinds []domain.OutcomeKind) {
	if len(kinds) == 0 {
		f.allowed = nil
		return
	}
	f.allowed = make(map[domain.OutcomeKind]bool, len(kinds))
	for _, k := range kinds {
		f.allowed[k] = true
	}
}

func (f *kindFilter) AcceptsKind(kind domain.OutcomeKind) bool {
	if len(f.allowed) == 0 {
		return true
	}
	return f.allowed[kind]
}

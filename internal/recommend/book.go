package recommend

import (
	"sort"

	"github.com/dyike/SchwabAI/internal/models"
)

// book keeps at most one recommendation per symbol.
type book struct {
	bySymbol map[string]models.Recommendation
}

func newBook() *book {
	return &book{bySymbol: make(map[string]models.Recommendation)}
}

func (b *book) get(sym string) (models.Recommendation, bool) {
	r, ok := b.bySymbol[sym]
	return r, ok
}

func (b *book) put(r models.Recommendation) {
	b.bySymbol[r.Symbol] = r
}

// blocked reports whether sym already has a buy or sell, or is held for
// lack of data.
func (b *book) blocked(sym string) bool {
	r, ok := b.bySymbol[sym]
	return ok && (r.Action != models.ActionHold || r.Rationale == RationaleDataUnavailable)
}

// offer adds r unless sym already has a higher-priority action.
func (b *book) offer(r models.Recommendation) {
	if cur, ok := b.bySymbol[r.Symbol]; ok && cur.Priority >= r.Priority && cur.Action != models.ActionHold {
		return
	}
	if cur, ok := b.bySymbol[r.Symbol]; ok && cur.Rationale == RationaleDataUnavailable {
		return
	}
	b.bySymbol[r.Symbol] = r
}

func (b *book) sorted() []models.Recommendation {
	out := make([]models.Recommendation, 0, len(b.bySymbol))
	for _, r := range b.bySymbol {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

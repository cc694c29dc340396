package correction

import "strings"

// Trader is one known trading entity. Codes are scoped to a mandi.
type Trader struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	MandiID int64  `json:"mandi_id"`
}

// TraderLookup resolves a trader code entered on a receipt of mandiID.
type TraderLookup interface {
	Lookup(code string, mandiID int64) (Trader, bool)
}

type traderKey struct {
	code    string
	mandiID int64
}

// TraderIndex is an immutable (code, mandi) index over a trader list.
// When the list holds several traders with the same key the first one in
// list order wins; the others are reported by Duplicates.
type TraderIndex struct {
	byKey      map[traderKey]Trader
	duplicates []Trader
	n          int
}

func NewTraderIndex(traders []Trader) *TraderIndex {
	ix := &TraderIndex{byKey: make(map[traderKey]Trader, len(traders)), n: len(traders)}
	for _, t := range traders {
		k := traderKey{code: strings.TrimSpace(t.Code), mandiID: t.MandiID}
		if k.code == "" {
			continue
		}
		if _, seen := ix.byKey[k]; seen {
			ix.duplicates = append(ix.duplicates, t)
			continue
		}
		ix.byKey[k] = t
	}
	return ix
}

func (ix *TraderIndex) Lookup(code string, mandiID int64) (Trader, bool) {
	if ix == nil {
		return Trader{}, false
	}
	t, ok := ix.byKey[traderKey{code: strings.TrimSpace(code), mandiID: mandiID}]
	return t, ok
}

// Duplicates lists the traders shadowed by an earlier entry with the same
// code and mandi.
func (ix *TraderIndex) Duplicates() []Trader {
	if ix == nil {
		return nil
	}
	return append([]Trader(nil), ix.duplicates...)
}

func (ix *TraderIndex) Len() int {
	if ix == nil {
		return 0
	}
	return ix.n
}

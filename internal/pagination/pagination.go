package pagination

import (
	"net/url"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 500
)

// Page is one window over a result set of Total rows.
type Page struct {
	Number  int
	PerPage int
	Total   int64
	Items   []map[string]any
}

// Normalize clamps a requested page number and size.
func Normalize(number, perPage int) (int, int) {
	if number < 1 {
		number = 1
	}
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return number, perPage
}

// ParseNumber reads ?page=, treating junk as page 1.
func ParseNumber(q url.Values) int {
	n, err := strconv.Atoi(q.Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (p Page) Offset() int {
	n, per := Normalize(p.Number, p.PerPage)
	return (n - 1) * per
}

func (p Page) Pages() int {
	_, per := Normalize(p.Number, p.PerPage)
	if p.Total <= 0 {
		return 0
	}
	return int((p.Total + int64(per) - 1) / int64(per))
}

func (p Page) HasPrev() bool { return p.Number > 1 }

func (p Page) HasNext() bool { return p.Number < p.Pages() }

func (p Page) PrevNum() int {
	if !p.HasPrev() {
		return 0
	}
	return p.Number - 1
}

func (p Page) NextNum() int {
	if !p.HasNext() {
		return 0
	}
	return p.Number + 1
}

// IterPages yields the page numbers to render, with 0 standing for a gap:
// the first leftEdge pages, leftCurrent pages before the current one,
// rightCurrent pages after it and the last rightEdge pages.
func (p Page) IterPages(leftEdge, leftCurrent, rightCurrent, rightEdge int) []int {
	pagesEnd := p.Pages() + 1
	out := make([]int, 0, leftEdge+leftCurrent+rightCurrent+rightEdge+3)

	leftEnd := min(1+leftEdge, pagesEnd)
	for n := 1; n < leftEnd; n++ {
		out = append(out, n)
	}
	if leftEnd == pagesEnd {
		return out
	}

	midStart := max(leftEnd, p.Number-leftCurrent)
	midEnd := min(p.Number+rightCurrent+1, pagesEnd)
	if midStart > leftEnd {
		out = append(out, 0)
	}
	for n := midStart; n < midEnd; n++ {
		out = append(out, n)
	}
	if midEnd == pagesEnd {
		return out
	}

	rightStart := max(midEnd, pagesEnd-rightEdge)
	if rightStart > midEnd {
		out = append(out, 0)
	}
	for n := rightStart; n < pagesEnd; n++ {
		out = append(out, n)
	}
	return out
}

// Link is one entry of a rendered pager. Gap links have Number 0 and no Href.
type Link struct {
	Number  int
	Href    string
	Current bool
	Gap     bool
}

// Links renders the default pager window as hrefs relative to path,
// preserving the other query parameters in base.
func (p Page) Links(path string, base url.Values) []Link {
	nums := p.IterPages(2, 2, 4, 2)
	out := make([]Link, 0, len(nums))
	for _, n := range nums {
		if n == 0 {
			out = append(out, Link{Gap: true})
			continue
		}
		out = append(out, Link{Number: n, Href: Href(path, base, n), Current: n == p.Number})
	}
	return out
}

// Href builds path?...&page=n from base without mutating it.
func Href(path string, base url.Values, n int) string {
	q := url.Values{}
	for k, v := range base {
		if k == "page" {
			continue
		}
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(n))
	return path + "?" + q.Encode()
}

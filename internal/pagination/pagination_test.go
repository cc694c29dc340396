package pagination

import (
	"net/url"
	"reflect"
	"testing"
)

func TestPage_Counts(t *testing.T) {
	t.Parallel()

	p := Page{Number: 2, PerPage: 20, Total: 41}
	if p.Pages() != 3 {
		t.Fatalf("pages=%d", p.Pages())
	}
	if !p.HasPrev() || !p.HasNext() || p.PrevNum() != 1 || p.NextNum() != 3 {
		t.Fatalf("prev=%v/%d next=%v/%d", p.HasPrev(), p.PrevNum(), p.HasNext(), p.NextNum())
	}
	if p.Offset() != 20 {
		t.Fatalf("offset=%d", p.Offset())
	}

	empty := Page{Number: 1, PerPage: 20}
	if empty.Pages() != 0 || empty.HasNext() || empty.HasPrev() || empty.NextNum() != 0 || empty.PrevNum() != 0 {
		t.Fatalf("empty page=%+v", empty)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	if n, per := Normalize(0, 0); n != 1 || per != DefaultPerPage {
		t.Fatalf("n=%d per=%d", n, per)
	}
	if _, per := Normalize(3, 10_000); per != MaxPerPage {
		t.Fatalf("per=%d", per)
	}
	if got := ParseNumber(url.Values{"page": {"abc"}}); got != 1 {
		t.Fatalf("got=%d", got)
	}
	if got := ParseNumber(url.Values{"page": {"-3"}}); got != 1 {
		t.Fatalf("got=%d", got)
	}
	if got := ParseNumber(url.Values{"page": {"7"}}); got != 7 {
		t.Fatalf("got=%d", got)
	}
}

func TestIterPages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		number int
		total  int64
		want   []int
	}{
		{name: "no rows", number: 1, total: 0, want: []int{}},
		{name: "single page", number: 1, total: 5, want: []int{1}},
		{name: "few pages", number: 1, total: 100, want: []int{1, 2, 3, 4, 5}},
		{name: "start of many", number: 1, total: 400, want: []int{1, 2, 3, 4, 5, 0, 19, 20}},
		{name: "middle", number: 10, total: 400, want: []int{1, 2, 0, 8, 9, 10, 11, 12, 13, 14, 0, 19, 20}},
		{name: "end", number: 20, total: 400, want: []int{1, 2, 0, 18, 19, 20}},
		{name: "near start", number: 4, total: 400, want: []int{1, 2, 3, 4, 5, 6, 7, 8, 0, 19, 20}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Page{Number: tc.number, PerPage: 20, Total: tc.total}
			got := p.IterPages(2, 2, 4, 2)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestLinks_PreserveQuery(t *testing.T) {
	t.Parallel()

	base := url.Values{"search": {"azad pur"}, "from_date": {"2024-01-01"}, "page": {"3"}}
	p := Page{Number: 3, PerPage: 20, Total: 400}
	links := p.Links("/admin/resource/traders", base)

	var current Link
	gaps := 0
	for _, l := range links {
		if l.Current {
			current = l
		}
		if l.Gap {
			gaps++
		}
	}
	if current.Number != 3 {
		t.Fatalf("current=%+v", current)
	}
	if gaps != 1 {
		t.Fatalf("gaps=%d links=%+v", gaps, links)
	}
	if current.Href != "/admin/resource/traders?from_date=2024-01-01&page=3&search=azad+pur" {
		t.Fatalf("href=%q", current.Href)
	}
	if base.Get("page") != "3" {
		t.Fatal("base mutated")
	}
}

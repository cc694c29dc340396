package routing

import "testing"

func TestParsePathPattern(t *testing.T) {
	t.Parallel()

	if _, ok := parsePathPattern("/health"); ok {
		t.Fatal("expected non-pattern")
	}
	if _, ok := parsePathPattern("{no-leading-slash-but-has-brace}"); ok {
		t.Fatal("expected invalid")
	}
	if _, ok := parsePathPattern("/a/{id"); ok {
		t.Fatal("expected invalid")
	}
	if _, ok := parsePathPattern("/a/{}/b"); ok {
		t.Fatal("expected invalid")
	}
	if _, ok := parsePathPattern("/a/{id}x/b"); ok {
		t.Fatal("expected invalid")
	}
	if _, ok := parsePathPattern("/a//{id}/b"); ok {
		t.Fatal("expected invalid (empty segment)")
	}

	p, ok := parsePathPattern("/admin/resource/{resource_type}/{resource_id}/edit")
	if !ok {
		t.Fatal("expected ok")
	}
	if _, ok := (PathPattern{}).Match("/a/x/b"); ok {
		t.Fatal("expected zero-value to not match")
	}
	params, ok := p.Match("/admin/resource/mandi-receipt/42/edit")
	if !ok {
		t.Fatal("expected match")
	}
	if params["resource_type"] != "mandi-receipt" || params["resource_id"] != "42" {
		t.Fatalf("params=%v", params)
	}
	if _, ok := p.Match("/admin/resource/mandi-receipt/42/view"); ok {
		t.Fatal("expected no match")
	}
	if _, ok := p.Match("/admin/resource/mandi-receipt/42"); ok {
		t.Fatal("expected no match")
	}
	if _, ok := p.Match("/admin/resource//42/edit"); ok {
		t.Fatal("expected no match for empty segment")
	}
	if got := p.literals(); got != 3 {
		t.Fatalf("literals=%d", got)
	}
}

func TestSplitPathSegments(t *testing.T) {
	t.Parallel()

	if got := splitPathSegments("/"); got != nil {
		t.Fatalf("got=%v", got)
	}
	got := splitPathSegments("/a/b")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got=%v", got)
	}
}

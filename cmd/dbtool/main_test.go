package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jacksonlee411/mandi-console/internal/correction"
)

func TestParseMigrateArgs(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:app@db:5432/mandi?sslmode=disable")

	a, err := parseMigrateArgs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.direction != "up" {
		t.Fatalf("direction=%q", a.direction)
	}
	if a.url != "postgres://app:app@db:5432/mandi?sslmode=disable" {
		t.Fatalf("url=%q", a.url)
	}

	a, err = parseMigrateArgs([]string{"--url", "postgres://x", "status"})
	if err != nil {
		t.Fatal(err)
	}
	if a.direction != "status" || a.url != "postgres://x" {
		t.Fatalf("got %+v", a)
	}

	if _, err := parseMigrateArgs([]string{"sideways"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseCreateUserArgs(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")

	t.Run("defaults", func(t *testing.T) {
		a, err := parseCreateUserArgs([]string{"--phone", " 9876543210 ", "--password", "pw"})
		if err != nil {
			t.Fatal(err)
		}
		if a.phone != "9876543210" || a.role != "admin" || a.url != "postgres://env" {
			t.Fatalf("got %+v", a)
		}
	})

	t.Run("intern role", func(t *testing.T) {
		a, err := parseCreateUserArgs([]string{"--phone", "+919876543210", "--password", "pw", "--role", "data_extractor_intern"})
		if err != nil {
			t.Fatal(err)
		}
		if a.role != "data_extractor_intern" {
			t.Fatalf("role=%q", a.role)
		}
	})

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing password", args: []string{"--phone", "9876543210"}, want: "missing"},
		{name: "bad phone", args: []string{"--phone", "abc", "--password", "pw"}, want: "invalid phone"},
		{name: "unknown role", args: []string{"--phone", "9876543210", "--password", "pw", "--role", "root"}, want: "unknown role"},
		{name: "anonymous role", args: []string{"--phone", "9876543210", "--password", "pw", "--role", "anonymous"}, want: "unknown role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCreateUserArgs(tc.args)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v", err)
			}
		})
	}
}

func TestParseCorrectReceiptArgs(t *testing.T) {
	t.Setenv("ADMIN_BASE_URL", "")
	t.Setenv("ADMIN_SID", "sid-env")

	a, err := parseCorrectReceiptArgs([]string{"--receipt", "7", "--mandi", "3", "--printed", "yes", "--mobile", "9876543210", "--code", "55"})
	if err != nil {
		t.Fatal(err)
	}
	if a.baseURL != "http://localhost:8080" || a.sid != "sid-env" || a.printed != correction.PrintedYes {
		t.Fatalf("got %+v", a)
	}
	if a.receiptID != 7 || a.mandiID != 3 || a.mobile != "9876543210" || a.code != "55" {
		t.Fatalf("got %+v", a)
	}

	a, err = parseCorrectReceiptArgs([]string{"--sid", "s1", "--base-url", "http://console:9000", "--receipt", "7", "--mandi", "3", "--printed", "NO", "--mobile-na", "--code-na"})
	if err != nil {
		t.Fatal(err)
	}
	if a.sid != "s1" || a.baseURL != "http://console:9000" || a.printed != correction.PrintedNo || !a.mobileNA || !a.codeNA {
		t.Fatalf("got %+v", a)
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing receipt", args: []string{"--mandi", "3"}, want: "missing --receipt"},
		{name: "bad printed", args: []string{"--receipt", "7", "--mandi", "3", "--printed", "maybe"}, want: "invalid --printed"},
		{name: "mobile both ways", args: []string{"--receipt", "7", "--mandi", "3", "--mobile", "1", "--mobile-na"}, want: "exclusive"},
		{name: "code both ways", args: []string{"--receipt", "7", "--mandi", "3", "--code", "5", "--code-na"}, want: "--code-na"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCorrectReceiptArgs(tc.args)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v", err)
			}
		})
	}

	t.Setenv("ADMIN_SID", "")
	if _, err := parseCorrectReceiptArgs([]string{"--receipt", "7", "--mandi", "3"}); err == nil || !strings.Contains(err.Error(), "--sid") {
		t.Fatalf("err=%v", err)
	}
}

func TestCorrectReceipt_SubmitsSignedRow(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != correction.UpdatePath {
			t.Errorf("path=%s", r.URL.Path)
		}
		if c, err := r.Cookie(sidCookieName); err != nil || c.Value != "s1" {
			t.Errorf("cookie=%v err=%v", c, err)
		}
		if u, p, ok := r.BasicAuth(); !ok || u != "ops" || p != "pw" {
			t.Errorf("basic auth=%q %q %v", u, p, ok)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"Receipt updated"}`))
	}))
	defer srv.Close()

	a, err := parseCorrectReceiptArgs([]string{"--sid", "s1", "--base-url", srv.URL, "--receipt", "7", "--mandi", "3",
		"--printed", "Yes", "--mobile", "9876543210", "--code", "55", "--name", "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	lookup := correction.NewTraderIndex([]correction.Trader{{ID: 11, Name: "Ravi Traders", Code: "55", MandiID: 3}})
	row := a.row(lookup)
	if row.TraderName.Value != "Ravi Traders" || !row.TraderName.Disabled {
		t.Fatalf("trader name=%+v", row.TraderName)
	}

	client := sessionClient{client: srv.Client(), sid: a.sid, user: "ops", pass: "pw"}
	res := correction.NewSubmitter(client, a.baseURL, nil).Submit(context.Background(), row)
	if res.Outcome != correction.OutcomeReload {
		t.Fatalf("result=%+v", res)
	}
	if got[correction.KeySaleReceiptID] != float64(7) {
		t.Fatalf("payload=%v", got)
	}
}

package contest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "loungebot/pkg/logx"
)

func TestClientFetchRequestShape(t *testing.T) {
	var gotAuth string
	var gotQuery map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"objects":[
			{"event":"Weekly Contest 500","resource":"leetcode.com","start":"2026-09-06T02:30:00","duration":5400,"href":"https://leetcode.com/contest/weekly-500"},
			{"event":"Starters 200","resource":{"name":"codechef.com"},"start":"2026-09-03T14:30:00","duration":10800}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL:  srv.URL,
		Username: "alice",
		APIKey:   "sekrit",
		Limit:    200,
	}, logx.Nop())

	windowStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	raws, err := c.Fetch(context.Background(), windowStart, windowStart.AddDate(0, 0, 30), AllPlatformKeys())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 records, got %d", len(raws))
	}
	if raws[1].Resource.Name != "codechef.com" {
		t.Fatalf("object-form resource not decoded: %+v", raws[1])
	}

	if gotAuth != "ApiKey alice:sekrit" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotQuery["start__gte"] != "2026-09-01T00:00:00" {
		t.Fatalf("start__gte = %q", gotQuery["start__gte"])
	}
	if gotQuery["start__lte"] != "2026-10-01T00:00:00" {
		t.Fatalf("start__lte = %q", gotQuery["start__lte"])
	}
	if gotQuery["resource__in"] != "codeforces.com,codechef.com,atcoder.jp,leetcode.com" {
		t.Fatalf("resource__in = %q", gotQuery["resource__in"])
	}
	if gotQuery["order_by"] != "start" || gotQuery["format"] != "json" || gotQuery["limit"] != "200" {
		t.Fatalf("unexpected query: %v", gotQuery)
	}
}

func TestClientFetchOmitsAuthWithoutCredentials(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.Write([]byte(`{"objects":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, logx.Nop())
	if _, err := c.Fetch(context.Background(), time.Now(), time.Now().AddDate(0, 0, 1), nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if sawAuth {
		t.Fatalf("request carried an Authorization header without credentials")
	}
}

func TestClientFetchClassifiesStatuses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrSourceUnavailable},
		{"not found", http.StatusNotFound, ErrSourceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL}, logx.Nop())
			_, err := c.Fetch(context.Background(), time.Now(), time.Now().AddDate(0, 0, 1), nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
			}
			if tc.status != http.StatusUnauthorized && tc.status != http.StatusTooManyRequests {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != tc.status {
					t.Fatalf("expected StatusError carrying %d, got %v", tc.status, err)
				}
			}
		})
	}
}

func TestClientFetchNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, logx.Nop())
	_, err := c.Fetch(context.Background(), time.Now(), time.Now().AddDate(0, 0, 1), nil)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("got %v, want ErrSourceUnavailable", err)
	}
}

func TestClientFetchBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objects": [{`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL}, logx.Nop())
	_, err := c.Fetch(context.Background(), time.Now(), time.Now().AddDate(0, 0, 1), nil)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("got %v, want ErrSourceUnavailable", err)
	}
}

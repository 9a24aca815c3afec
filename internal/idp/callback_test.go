package idp

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func hitCallback(t *testing.T, cb *callbackServer, q url.Values) {
	t.Helper()
	u := "http://" + cb.ln.Addr().String() + "/callback?" + q.Encode()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
}

func TestCallback_DeliversCode(t *testing.T) {
	cb, err := listenCallback("127.0.0.1:0", "st1")
	if err != nil {
		t.Fatal(err)
	}
	defer cb.Close()

	hitCallback(t, cb, url.Values{"code": {"c1"}, "state": {"st1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	code, err := cb.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if code != "c1" {
		t.Fatalf("expected code c1, got %q", code)
	}
}

func TestCallback_StateMismatch(t *testing.T) {
	cb, err := listenCallback("127.0.0.1:0", "st1")
	if err != nil {
		t.Fatal(err)
	}
	defer cb.Close()

	hitCallback(t, cb, url.Values{"code": {"c1"}, "state": {"otro"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cb.Wait(ctx); err == nil {
		t.Fatal("expected error on state mismatch")
	}
}

func TestCallback_ProviderError(t *testing.T) {
	cb, err := listenCallback("127.0.0.1:0", "st1")
	if err != nil {
		t.Fatal(err)
	}
	defer cb.Close()

	hitCallback(t, cb, url.Values{
		"error":             {"access_denied"},
		"error_description": {"user cancelled"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cb.Wait(ctx); err == nil {
		t.Fatal("expected provider error")
	}
}

func TestCallback_OnlyFirstResultCounts(t *testing.T) {
	cb, err := listenCallback("127.0.0.1:0", "st1")
	if err != nil {
		t.Fatal(err)
	}
	defer cb.Close()

	hitCallback(t, cb, url.Values{"code": {"primero"}, "state": {"st1"}})
	hitCallback(t, cb, url.Values{"code": {"segundo"}, "state": {"st1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	code, err := cb.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if code != "primero" {
		t.Fatalf("expected first code to win, got %q", code)
	}
}

func TestCallback_WaitHonorsContext(t *testing.T) {
	cb, err := listenCallback("127.0.0.1:0", "st1")
	if err != nil {
		t.Fatal(err)
	}
	defer cb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := cb.Wait(ctx); err == nil {
		t.Fatal("expected timeout error")
	}
}

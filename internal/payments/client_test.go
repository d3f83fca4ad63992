package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetSessionStatus_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/checkout/session-status" {
			t.Fatalf("path = %s, want /api/checkout/session-status", r.URL.Path)
		}
		if got := r.URL.Query().Get("session_id"); got != "cs_test_123" {
			t.Fatalf("session_id = %q, want cs_test_123", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"payment_status": "paid",
			"metadata": {"purchaseType": "StudentCoursePurchase", "courseSlug": "intro-to-programming"},
			"amount_total": 10770,
			"currency": "chf",
			"customer_email": "student@example.com"
		}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := client.GetSessionStatus(ctx, "cs_test_123")
	if err != nil {
		t.Fatalf("GetSessionStatus error: %v", err)
	}
	if status.PaymentStatus != "paid" {
		t.Fatalf("payment_status = %q, want paid", status.PaymentStatus)
	}
	if status.AmountTotal != 10770 {
		t.Fatalf("amount_total = %d, want 10770", status.AmountTotal)
	}
	if status.Metadata["purchaseType"] != "StudentCoursePurchase" {
		t.Fatalf("unexpected metadata: %+v", status.Metadata)
	}
	if status.CustomerEmail != "student@example.com" {
		t.Fatalf("customer_email = %q", status.CustomerEmail)
	}
}

func TestGetSessionStatus_UnpaidSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_status": "unpaid", "metadata": {}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status, err := client.GetSessionStatus(ctx, "cs_test_456")
	if err != nil {
		t.Fatalf("GetSessionStatus error: %v", err)
	}
	if status.PaymentStatus != "unpaid" {
		t.Fatalf("payment_status = %q, want unpaid", status.PaymentStatus)
	}
}

func TestGetSessionStatus_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.GetSessionStatus(ctx, "cs_missing"); err == nil {
		t.Fatalf("expected error for status 404")
	}
}

func TestGetSessionStatus_NotConfigured(t *testing.T) {
	var client *Client

	if _, err := client.GetSessionStatus(context.Background(), "cs_test"); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}

package playfab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goodtune/playgate/internal/storage"
)

var testKey = storage.LedgerKey{Credential: "ticket-123", ApplicationID: "ABCD"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{BaseURL: srv.URL})
}

func TestGetRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Client/GetUserData" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("X-Authorization"); got != "ticket-123" {
			t.Errorf("Expected session ticket header, got %q", got)
		}
		_, _ = w.Write([]byte(`{"code":200,"status":"OK","data":{"Data":{
			"playtime_seconds":{"Value":"40","Permission":"Private"},
			"playtime_date":{"Value":"2024-01-15","Permission":"Private"}}}}`))
	})

	record, err := client.GetRecord(context.Background(), testKey)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.Seconds != 40 {
		t.Errorf("Expected Seconds 40, got %d", record.Seconds)
	}
	if record.Date != "2024-01-15" {
		t.Errorf("Expected Date 2024-01-15, got %s", record.Date)
	}
}

func TestGetRecord_NoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"status":"OK","data":{"Data":{}}}`))
	})

	_, err := client.GetRecord(context.Background(), testKey)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetRecord_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"status":"Unauthorized","error":"NotAuthenticated",
			"errorCode":1074,"errorMessage":"This API method does not allow anonymous callers."}`))
	})

	_, err := client.GetRecord(context.Background(), testKey)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.HTTPCode != http.StatusUnauthorized {
		t.Errorf("Expected code 401, got %d", apiErr.HTTPCode)
	}
	if apiErr.ErrorCode != 1074 {
		t.Errorf("Expected errorCode 1074, got %d", apiErr.ErrorCode)
	}
}

func TestGetRecord_NonJSONError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.GetRecord(context.Background(), testKey)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.HTTPCode != http.StatusBadGateway {
		t.Errorf("Expected code 502, got %d", apiErr.HTTPCode)
	}
}

func TestPutRecord(t *testing.T) {
	var received struct {
		Data map[string]string `json:"Data"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Client/UpdateUserData" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":200,"status":"OK","data":{"DataVersion":7}}`))
	})

	err := client.PutRecord(context.Background(), testKey, storage.PlaytimeRecord{Seconds: 95, Date: "2024-01-15"})
	if err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if received.Data["playtime_seconds"] != "95" {
		t.Errorf("Expected playtime_seconds=95, got %q", received.Data["playtime_seconds"])
	}
	if received.Data["playtime_date"] != "2024-01-15" {
		t.Errorf("Expected playtime_date=2024-01-15, got %q", received.Data["playtime_date"])
	}
}

func TestEndpoint_DefaultsToTitleHost(t *testing.T) {
	client := NewClient(Config{})

	got := client.endpoint("ABCD", "/Client/GetUserData")
	want := "https://ABCD.playfabapi.com/Client/GetUserData"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"can-telemetry-dashboard/internal/model"
)

func newTestClient(handler http.HandlerFunc) (*Client, func()) {
	srv := httptest.NewServer(handler)
	return New(srv.URL), srv.Close
}

func fetchKind(t *testing.T, err error) Kind {
	t.Helper()
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fetcher.Error, got %T: %v", err, err)
	}
	return fe.Kind
}

func TestFetchLatest_OK(t *testing.T) {
	// Scenario: all three known fields plus an unknown one
	// Expect: known fields decoded, unknown ignored
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/can/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"messages":{
			"speed":{"value":42.5},
			"battery_voltage":{"value":398.2},
			"motor_temp":{"value":61.0},
			"regen_level":{"value":3}
		}}`))
	})
	defer done()

	got, err := client.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 fields, got %d: %#v", len(got), got)
	}
	if got[model.FieldSpeed] != 42.5 || got[model.FieldBatteryVoltage] != 398.2 || got[model.FieldMotorTemp] != 61.0 {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestFetchLatest_PartialMessages(t *testing.T) {
	// Scenario: only speed arrived this cycle
	// Expect: map holds speed only; absent fields are not an error
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":{"speed":{"value":10}}}`))
	})
	defer done()

	got, err := client.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if len(got) != 1 || got[model.FieldSpeed] != 10 {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestFetchLatest_MissingValueRejectsResponse(t *testing.T) {
	// Scenario: known field object without a "value" member
	// Expect: whole response rejected as a decode error
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":{"speed":{"value":10},"motor_temp":{"unit":"C"}}}`))
	})
	defer done()

	_, err := client.FetchLatest(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if k := fetchKind(t, err); k != KindDecode {
		t.Fatalf("want decode error, got %s", k)
	}
}

func TestFetchLatest_MalformedJSON(t *testing.T) {
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":`))
	})
	defer done()

	_, err := client.FetchLatest(context.Background())
	if k := fetchKind(t, err); k != KindDecode {
		t.Fatalf("want decode error, got %s", k)
	}
}

func TestFetchLatest_Non2xx(t *testing.T) {
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer done()

	_, err := client.FetchLatest(context.Background())
	if k := fetchKind(t, err); k != KindProtocol {
		t.Fatalf("want protocol error, got %s", k)
	}
}

func TestFetchLatest_Timeout(t *testing.T) {
	// Scenario: endpoint hangs longer than the caller's deadline
	// Expect: transport-class error, call returns promptly
	block := make(chan struct{})
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer func() { close(block); done() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.FetchLatest(ctx)
	if k := fetchKind(t, err); k != KindTransport {
		t.Fatalf("want transport error, got %s", k)
	}
}

func TestFetchLatest_ConnectionRefused(t *testing.T) {
	client := New("http://127.0.0.1:1")
	_, err := client.FetchLatest(context.Background())
	if k := fetchKind(t, err); k != KindTransport {
		t.Fatalf("want transport error, got %s", k)
	}
}

func TestFetchStatus_OK(t *testing.T) {
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/can/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"connected":true}`))
	})
	defer done()

	st, err := client.FetchStatus(context.Background())
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if !st.Connected {
		t.Fatal("want connected=true")
	}
}

func TestFetchStatus_MissingConnected(t *testing.T) {
	// Scenario: status body without the "connected" member
	// Expect: decode error
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uptime_s":120}`))
	})
	defer done()

	_, err := client.FetchStatus(context.Background())
	if k := fetchKind(t, err); k != KindDecode {
		t.Fatalf("want decode error, got %s", k)
	}
}

func TestFetchStatus_Non2xx(t *testing.T) {
	client, done := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer done()

	_, err := client.FetchStatus(context.Background())
	if k := fetchKind(t, err); k != KindProtocol {
		t.Fatalf("want protocol error, got %s", k)
	}
}

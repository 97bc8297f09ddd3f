package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/gamescope-dbus/internal/engine"
	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
)

var observedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeEngine struct {
	values  map[gamescope.Object]map[string]any
	writeFn func(obj gamescope.Object, name string, value any) error
	events  chan engine.ChangeEvent
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		values: map[gamescope.Object]map[string]any{
			gamescope.Manager:     {"FocusedApp": uint32(480), "FPSLimit": uint32(60)},
			gamescope.XWayland(0): {"AppID": uint32(480)},
		},
		events: make(chan engine.ChangeEvent, 4),
	}
}

func (f *fakeEngine) Objects() []gamescope.Object {
	return []gamescope.Object{gamescope.Manager, gamescope.XWayland(0)}
}

func (f *fakeEngine) OnRead(obj gamescope.Object, name string) (any, error) {
	props, ok := f.values[obj]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrDetached, obj)
	}
	v, ok := props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, name)
	}
	return v, nil
}

func (f *fakeEngine) Updated(obj gamescope.Object, name string) (time.Time, bool) {
	if _, err := f.OnRead(obj, name); err != nil {
		return time.Time{}, false
	}
	return observedAt, true
}

func (f *fakeEngine) OnReadAll(obj gamescope.Object) (map[string]any, error) {
	props, ok := f.values[obj]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrDetached, obj)
	}
	return props, nil
}

func (f *fakeEngine) OnWrite(ctx context.Context, obj gamescope.Object, name string, value any) error {
	if f.writeFn != nil {
		return f.writeFn(obj, name, value)
	}
	return nil
}

func (f *fakeEngine) Subscribe() chan engine.ChangeEvent { return f.events }

func (f *fakeEngine) Unsubscribe(ch chan engine.ChangeEvent) {}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListObjects(t *testing.T) {
	s := NewServer(newFakeEngine(), time.Second)
	rec := do(t, s.Handler(), "GET", "/api/objects", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var infos []ObjectInfo
	if err := json.NewDecoder(rec.Body).Decode(&infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 || infos[1].Path != "/org/shadowblip/Gamescope/XWayland0" {
		t.Errorf("got %+v", infos)
	}
}

func TestGetProperty(t *testing.T) {
	s := NewServer(newFakeEngine(), time.Second)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "cached", target: "/api/objects/manager/properties/FocusedApp", status: http.StatusOK},
		{name: "unknown property", target: "/api/objects/Manager/properties/Nope", status: http.StatusNotFound},
		{name: "detached object", target: "/api/objects/XWayland3/properties/AppID", status: http.StatusNotFound},
		{name: "bad object name", target: "/api/objects/compositor/properties/AppID", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s.Handler(), "GET", tt.target, "")
			if rec.Code != tt.status {
				t.Errorf("status %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestGetPropertyBody(t *testing.T) {
	s := NewServer(newFakeEngine(), time.Second)
	rec := do(t, s.Handler(), "GET", "/api/objects/Manager/properties/FocusedApp", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var body struct {
		Object   string    `json:"object"`
		Property string    `json:"property"`
		Value    uint32    `json:"value"`
		Updated  time.Time `json:"updated"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Object != "Manager" || body.Value != 480 || !body.Updated.Equal(observedAt) {
		t.Errorf("got %+v", body)
	}
}

func TestGetObject(t *testing.T) {
	s := NewServer(newFakeEngine(), time.Second)
	rec := do(t, s.Handler(), "GET", "/api/objects/Manager", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var body struct {
		Name       string          `json:"name"`
		Properties []propertyValue `json:"properties"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Name != "Manager" || len(body.Properties) != 2 || body.Properties[0].Name != "FPSLimit" {
		t.Errorf("got %+v", body)
	}
}

func TestSetPropertyStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{name: "accepted", body: `{"value": 30}`, status: http.StatusAccepted},
		{name: "read only", err: engine.ErrNotWritable, body: `{"value": 1}`, status: http.StatusForbidden},
		{name: "invalid", err: engine.ErrInvalidArgument, body: `{"value": "x"}`, status: http.StatusBadRequest},
		{name: "write failed", err: engine.ErrWriteFailed, body: `{"value": 1}`, status: http.StatusBadGateway},
		{name: "malformed body", body: `{`, status: http.StatusBadRequest},
		{name: "missing value", body: `{}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFakeEngine()
			var got any
			e.writeFn = func(obj gamescope.Object, name string, value any) error {
				got = value
				return tt.err
			}
			rec := do(t, NewServer(e, time.Second).Handler(), "PUT", "/api/objects/Manager/properties/FPSLimit", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusAccepted && got != float64(30) {
				t.Errorf("engine received %v", got)
			}
		})
	}
}

func TestStream(t *testing.T) {
	e := newFakeEngine()
	srv := httptest.NewServer(NewServer(e, time.Second).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	e.events <- engine.ChangeEvent{Object: "Manager", Property: "FocusedApp", Value: uint32(7)}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Object   string  `json:"object"`
		Property string  `json:"property"`
		Value    float64 `json:"value"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Object != "Manager" || ev.Property != "FocusedApp" || ev.Value != 7 {
		t.Errorf("got %+v", ev)
	}
}

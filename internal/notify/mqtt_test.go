package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"octoprint-cli/internal/status"
)

func TestBrokerURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{"localhost", "tcp://localhost:1883", false},
		{"broker.lan:1884", "tcp://broker.lan:1884", false},
		{"tls://broker.lan", "tls://broker.lan:8883", false},
		{"mqtts://broker.lan:9000", "tls://broker.lan:9000", false},
		{"ws://broker.lan:8080/mqtt", "ws://broker.lan:8080/mqtt", false},
		{"http://broker.lan", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := BrokerURL(tc.in)
			if tc.err {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	report := status.Report{Status: "warning", Warnings: []string{"bed temperature 6.0°C from target"}}
	ev := NewEvent("report", "http://octopi.local", at, report)

	if _, err := uuid.Parse(ev.ID); err != nil {
		t.Fatalf("id %q is not a uuid: %v", ev.ID, err)
	}
	if !ev.Time.Equal(at) || ev.Time.Location() != time.UTC {
		t.Fatalf("time = %v", ev.Time)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	data, ok := doc["data"].(map[string]any)
	if !ok || data["status"] != "warning" || doc["kind"] != "report" {
		t.Fatalf("doc = %v", doc)
	}
}

func TestTopic(t *testing.T) {
	p := &Publisher{topic: "shop/octo"}
	if got := p.Topic(TopicAnomalies); got != "shop/octo/anomalies" {
		t.Fatalf("topic = %q", got)
	}
}

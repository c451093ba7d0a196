package mqtt

import (
	"strings"
	"testing"

	"github.com/nerrad567/escpos-sim/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "escpos-sim-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	if got := opts.ClientID; got != "escpos-sim-test" {
		t.Errorf("ClientID = %q", got)
	}

	servers := opts.Servers
	if len(servers) != 1 {
		t.Fatalf("Servers = %v, want 1 entry", servers)
	}
	if got := servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp scheme", got)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set with TLS enabled")
	}
}

func TestBuildClientOptions_Auth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "printer"
	cfg.Auth.Password = "secret"
	opts := buildClientOptions(cfg)

	if opts.Username != "printer" {
		t.Errorf("Username = %q", opts.Username)
	}
	if opts.Password != "secret" {
		t.Errorf("Password = %q", opts.Password)
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"printer status", topics.PrinterStatus(), "escpos-sim/printer/status"},
		{"printer error", topics.PrinterError(), "escpos-sim/printer/error"},
		{"printer recovery", topics.PrinterRecovery(), "escpos-sim/printer/recovery"},
		{"printer command", topics.PrinterCommand(), "escpos-sim/printer/command"},
		{"system status", topics.SystemStatus(), "escpos-sim/system/status"},
		{"all printer", topics.AllPrinterTopics(), "escpos-sim/printer/+"},
		{"all", topics.AllTopics(), "escpos-sim/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("escpos-sim-test")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, "escpos-sim-test") {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("escpos-sim-test")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testConfig()}

	if err := c.Publish("", []byte("x"), 1, false); err != ErrInvalidTopic {
		t.Errorf("empty topic err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("bad qos err = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	if err := c.Subscribe("", 1, func(string, []byte) error { return nil }); err != ErrInvalidTopic {
		t.Errorf("empty topic err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("t", 1, nil); err == nil {
		t.Error("nil handler accepted")
	}
	if err := c.Unsubscribe(""); err != ErrInvalidTopic {
		t.Errorf("empty unsubscribe err = %v, want ErrInvalidTopic", err)
	}
}

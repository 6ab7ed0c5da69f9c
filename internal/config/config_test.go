package config

import (
	"testing"
	"time"

	"github.com/austindbirch/rollbar_relay/internal/transport"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		envValue string
		def      string
		expected string
	}{
		{
			name:     "returns env value when set",
			key:      "TEST_VAR",
			envValue: "test-value",
			def:      "default",
			expected: "test-value",
		},
		{
			name:     "returns default when not set",
			key:      "TEST_VAR",
			envValue: "",
			def:      "default",
			expected: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)

			if result := getenv(tt.key, tt.def); result != tt.expected {
				t.Errorf("getenv(%q, %q) = %q, want %q", tt.key, tt.def, result, tt.expected)
			}
		})
	}
}

func TestGetenvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      int
		expected int
	}{
		{name: "valid integer", envValue: "42", def: 10, expected: 42},
		{name: "invalid integer", envValue: "not-an-int", def: 10, expected: 10},
		{name: "empty string", envValue: "", def: 10, expected: 10},
		{name: "negative integer", envValue: "-5", def: 10, expected: -5},
		{name: "zero", envValue: "0", def: 10, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envValue)

			if result := getenvInt("TEST_INT_VAR", tt.def); result != tt.expected {
				t.Errorf("getenvInt(%q, %d) = %d, want %d", "TEST_INT_VAR", tt.def, result, tt.expected)
			}
		})
	}
}

func TestGetenvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      time.Duration
		expected time.Duration
	}{
		{name: "milliseconds", envValue: "250ms", def: time.Second, expected: 250 * time.Millisecond},
		{name: "seconds", envValue: "3s", def: time.Second, expected: 3 * time.Second},
		{name: "bare number is invalid", envValue: "100", def: time.Second, expected: time.Second},
		{name: "garbage", envValue: "soon", def: time.Second, expected: time.Second},
		{name: "empty string", envValue: "", def: time.Second, expected: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION_VAR", tt.envValue)

			if result := getenvDuration("TEST_DURATION_VAR", tt.def); result != tt.expected {
				t.Errorf("getenvDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, Config)
	}{
		{
			name:    "default values when no env vars set",
			envVars: map[string]string{},
			check: func(t *testing.T, c Config) {
				if c.AppName != "rollbar-relay" {
					t.Errorf("AppName = %q, want rollbar-relay", c.AppName)
				}
				if c.Client.Endpoint != transport.DefaultEndpoint {
					t.Errorf("Client.Endpoint = %q, want %q", c.Client.Endpoint, transport.DefaultEndpoint)
				}
				if c.Client.QueueCapacity != 50 {
					t.Errorf("Client.QueueCapacity = %d, want 50", c.Client.QueueCapacity)
				}
				if c.Client.ShutdownTimeout != 100*time.Millisecond {
					t.Errorf("Client.ShutdownTimeout = %v, want 100ms", c.Client.ShutdownTimeout)
				}
				if c.Client.Backend != transport.BackendMemory {
					t.Errorf("Client.Backend = %q, want %q", c.Client.Backend, transport.BackendMemory)
				}
				if c.NSQ.NsqdTCPAddr != "nsqd:4150" {
					t.Errorf("NSQ.NsqdTCPAddr = %q, want nsqd:4150", c.NSQ.NsqdTCPAddr)
				}
				if c.NSQ.NsqdHTTPAddr != "nsqd:4151" {
					t.Errorf("NSQ.NsqdHTTPAddr = %q, want nsqd:4151", c.NSQ.NsqdHTTPAddr)
				}
				if c.Monitor.Port != ":8084" || c.Monitor.PollInterval != 15*time.Second {
					t.Errorf("Monitor = %+v, want :8084 every 15s", c.Monitor)
				}
				if c.FakeReceiver.FailStatus != 500 {
					t.Errorf("FakeReceiver.FailStatus = %d, want 500", c.FakeReceiver.FailStatus)
				}
			},
		},
		{
			name: "custom values from environment",
			envVars: map[string]string{
				"APP_NAME":                 "test-app",
				"ROLLBAR_ACCESS_TOKEN":     "tok-123",
				"ROLLBAR_ENDPOINT":         "http://localhost:8081/api/1/item",
				"ROLLBAR_QUEUE_CAPACITY":   "10",
				"ROLLBAR_SHUTDOWN_TIMEOUT": "2s",
				"ROLLBAR_BACKEND":          "nsq",
				"NSQD_TCP_ADDR":            "test-nsqd:4150",
				"NSQ_ITEMS_TOPIC":          "items_test",
				"FAIL_FIRST_N":             "3",
				"FAIL_STATUS":              "403",
				"MONITOR_POLL_INTERVAL":    "5s",
			},
			check: func(t *testing.T, c Config) {
				if c.AppName != "test-app" {
					t.Errorf("AppName = %q, want test-app", c.AppName)
				}
				if c.Client.AccessToken != "tok-123" {
					t.Errorf("Client.AccessToken = %q, want tok-123", c.Client.AccessToken)
				}
				if c.Client.QueueCapacity != 10 {
					t.Errorf("Client.QueueCapacity = %d, want 10", c.Client.QueueCapacity)
				}
				if c.Client.ShutdownTimeout != 2*time.Second {
					t.Errorf("Client.ShutdownTimeout = %v, want 2s", c.Client.ShutdownTimeout)
				}
				if c.Client.Backend != "nsq" {
					t.Errorf("Client.Backend = %q, want nsq", c.Client.Backend)
				}
				if c.NSQ.ItemsTopic != "items_test" {
					t.Errorf("NSQ.ItemsTopic = %q, want items_test", c.NSQ.ItemsTopic)
				}
				if c.Monitor.PollInterval != 5*time.Second {
					t.Errorf("Monitor.PollInterval = %v, want 5s", c.Monitor.PollInterval)
				}
				if c.FakeReceiver.FailFirstN != 3 || c.FakeReceiver.FailStatus != 403 {
					t.Errorf("FakeReceiver = %+v, want FailFirstN=3 FailStatus=403", c.FakeReceiver)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			tt.check(t, FromEnv())
		})
	}
}

func TestConfig_Transport(t *testing.T) {
	c := Config{
		Client: Client{
			AccessToken:     "tok",
			Endpoint:        "http://collector/item",
			QueueCapacity:   7,
			ShutdownTimeout: time.Second,
			HTTPTimeout:     2 * time.Second,
			Backend:         "nsq",
		},
		NSQ: NSQ{
			NsqdTCPAddr:   "nsqd:4150",
			ItemsTopic:    "items",
			WorkerChannel: "delivery",
		},
	}

	tc := c.Transport()

	if tc.AccessToken != "tok" || tc.Endpoint != "http://collector/item" {
		t.Errorf("Transport() token/endpoint = %q/%q", tc.AccessToken, tc.Endpoint)
	}
	if tc.QueueCapacity != 7 {
		t.Errorf("Transport() QueueCapacity = %d, want 7", tc.QueueCapacity)
	}
	if tc.ShutdownTimeout != time.Second || tc.HTTPTimeout != 2*time.Second {
		t.Errorf("Transport() timeouts = %v/%v", tc.ShutdownTimeout, tc.HTTPTimeout)
	}
	if tc.Backend != "nsq" {
		t.Errorf("Transport() Backend = %q, want nsq", tc.Backend)
	}
	if tc.NSQ.Topic != "items" || tc.NSQ.Channel != "delivery" || tc.NSQ.NsqdTCPAddr != "nsqd:4150" {
		t.Errorf("Transport() NSQ = %+v", tc.NSQ)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("Transport().Validate() = %v, want nil", err)
	}
}

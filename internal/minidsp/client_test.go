package minidsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{name: "valid http", cfg: ClientConfig{Endpoint: "http://192.168.1.50:5380"}},
		{name: "valid with trailing slash", cfg: ClientConfig{Endpoint: "http://192.168.1.50:5380/"}},
		{name: "valid index", cfg: ClientConfig{Endpoint: "http://localhost:5380", Index: 2}},
		{name: "empty endpoint", cfg: ClientConfig{}, wantErr: true},
		{name: "no scheme", cfg: ClientConfig{Endpoint: "192.168.1.50:5380"}, wantErr: true},
		{name: "no host", cfg: ClientConfig{Endpoint: "http://"}, wantErr: true},
		{name: "negative index", cfg: ClientConfig{Endpoint: "http://localhost:5380", Index: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)

			if tt.wantErr {
				if err == nil {
					t.Fatal("NewClient() expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidEndpoint) {
					t.Errorf("error = %v, want ErrInvalidEndpoint", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("NewClient() unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("NewClient() returned nil client")
			}
		})
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	client, err := NewClient(ClientConfig{Endpoint: "http://localhost:5380/"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if client.Endpoint() != "http://localhost:5380" {
		t.Errorf("Endpoint() = %q, want trailing slash removed", client.Endpoint())
	}
}

func TestGetStatus(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"master":{"volume":-20.3,"mute":false},"input_levels":[-10.2,-5.9]}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	status, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}

	if gotPath != "/devices/0" {
		t.Errorf("request path = %q, want /devices/0", gotPath)
	}

	master, ok := status["master"].(map[string]any)
	if !ok {
		t.Fatalf("master = %T, want map", status["master"])
	}
	if master["volume"] != -20.3 {
		t.Errorf("raw volume = %v, want -20.3 (client does not round)", master["volume"])
	}
}

func TestGetStatusDeviceIndex(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, Index: 3})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	if _, err := client.GetStatus(context.Background()); err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}
	if gotPath != "/devices/3" {
		t.Errorf("request path = %q, want /devices/3", gotPath)
	}
}

func TestGetStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "invalid body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `not json`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client, err := NewClient(ClientConfig{Endpoint: srv.URL})
			if err != nil {
				t.Fatalf("NewClient() error: %v", err)
			}

			_, err = client.GetStatus(context.Background())
			if err == nil {
				t.Fatal("GetStatus() expected error, got nil")
			}
			if !errors.Is(err, ErrRefreshFailed) {
				t.Errorf("error = %v, want ErrRefreshFailed", err)
			}
		})
	}
}

func TestPostConfig(t *testing.T) {
	var gotPath, gotMethod, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	if err := client.PostConfig(context.Background(), VolumeCommand(-22.5)); err != nil {
		t.Fatalf("PostConfig() error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotPath != "/devices/0/config" {
		t.Errorf("path = %q, want /devices/0/config", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	ms, ok := payload["master_status"].(map[string]any)
	if !ok {
		t.Fatalf("body master_status = %T, want map", payload["master_status"])
	}
	if ms["volume"] != -22.5 {
		t.Errorf("body volume = %v, want -22.5", ms["volume"])
	}
	if _, ok := payload["outputs"]; ok {
		t.Error("body carries outputs key for a master-only command")
	}
}

func TestPostConfigEmptyCommand(t *testing.T) {
	client, err := NewClient(ClientConfig{Endpoint: "http://localhost:5380"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	err = client.PostConfig(context.Background(), Command{})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("error = %v, want ErrInvalidCommand", err)
	}
}

func TestPostConfigServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	err = client.PostConfig(context.Background(), MuteCommand(true))
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("error = %v, want ErrCommandFailed", err)
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		index    int
		want     string
	}{
		{
			name:     "http to ws",
			endpoint: "http://192.168.1.50:5380",
			want:     "ws://192.168.1.50:5380/devices/0?levels=true",
		},
		{
			name:     "https to wss",
			endpoint: "https://dsp.example.com",
			want:     "wss://dsp.example.com/devices/0?levels=true",
		},
		{
			name:     "tcp to ws",
			endpoint: "tcp://192.168.1.50:5380",
			want:     "ws://192.168.1.50:5380/devices/0?levels=true",
		},
		{
			name:     "ws passes through",
			endpoint: "ws://192.168.1.50:5380",
			want:     "ws://192.168.1.50:5380/devices/0?levels=true",
		},
		{
			name:     "trailing slash",
			endpoint: "http://192.168.1.50:5380/",
			want:     "ws://192.168.1.50:5380/devices/0?levels=true",
		},
		{
			name:     "base path preserved",
			endpoint: "http://192.168.1.50:5380/minidsp",
			want:     "ws://192.168.1.50:5380/minidsp/devices/0?levels=true",
		},
		{
			name:     "device index",
			endpoint: "http://192.168.1.50:5380",
			index:    2,
			want:     "ws://192.168.1.50:5380/devices/2?levels=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ClientConfig{Endpoint: tt.endpoint, Index: tt.index})
			if err != nil {
				t.Fatalf("NewClient() error: %v", err)
			}

			got, err := client.StreamURL()
			if err != nil {
				t.Fatalf("StreamURL() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("StreamURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

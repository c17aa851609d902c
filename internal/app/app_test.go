package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	server "cart-flipper/server"
	"cart-flipper/server/internal/config"
	"cart-flipper/server/logging"
)

func TestBuildSinks(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		mutate  func(*logging.Config)
		wantErr bool
		want    []string
	}{
		{name: "console", mutate: func(*logging.Config) {}, want: []string{"console"}},
		{name: "json without path", mutate: func(c *logging.Config) { c.EnabledSinks = []string{"json"} }, wantErr: true},
		{name: "json", mutate: func(c *logging.Config) {
			c.EnabledSinks = []string{"console", "json"}
			c.JSON.FilePath = filepath.Join(dir, "events.ndjson")
		}, want: []string{"console", "json"}},
		{name: "redis without address", mutate: func(c *logging.Config) { c.EnabledSinks = []string{"redis"} }, wantErr: true},
		{name: "unknown", mutate: func(c *logging.Config) { c.EnabledSinks = []string{"syslog"} }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := logging.DefaultConfig()
			tc.mutate(&cfg)
			sinks, closeFiles, err := buildSinks(cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			defer closeFiles()
			if len(sinks) != len(tc.want) {
				t.Fatalf("expected %d sinks, got %d", len(tc.want), len(sinks))
			}
			for _, name := range tc.want {
				if sinks[name] == nil {
					t.Fatalf("expected sink %q", name)
				}
			}
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "events.ndjson")); err != nil {
		t.Fatalf("expected json log file to be created: %v", err)
	}
}

func TestRandomPeerIDAvoidsAuthority(t *testing.T) {
	for i := 0; i < 100; i++ {
		if id := RandomPeerID(); id == 0 || id == server.DefaultAuthorityID {
			t.Fatalf("drew reserved id %d", id)
		}
	}
}

func TestRunClientStopsWithContext(t *testing.T) {
	authority, err := server.NewAuthority(server.DefaultAuthorityConfig())
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(authority.ServeWS))
	defer srv.Close()

	env, err := config.ParseEnv(map[string]string{
		"CARTFLIPPER_ROLE":          "client",
		"CARTFLIPPER_PEER_ID":       "55",
		"CARTFLIPPER_AUTHORITY_URL": "ws" + strings.TrimPrefix(srv.URL, "http"),
		"CARTFLIPPER_SETTINGS":      filepath.Join(t.TempDir(), "absent.yaml"),
	})
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Config{Env: env}) }()

	deadline := time.Now().Add(2 * time.Second)
	for authority.Hub().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := authority.Hub().LookupPeer(55); !ok {
		t.Fatalf("expected peer 55 to be connected")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("client did not stop")
	}
}

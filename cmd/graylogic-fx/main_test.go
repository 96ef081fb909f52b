package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fx/internal/auth"
	"github.com/nerrad567/gray-logic-fx/internal/effect"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnvVar, "/etc/graylogic/fx.yaml")
	if got := getConfigPath(); got != "/etc/graylogic/fx.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingSecret(t *testing.T) {
	t.Setenv("GRAYLOGIC_FX_JWT_SECRET", "")
	path := writeConfig(t, "site:\n  id: test-site\n")

	err := run(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("run() error = %v, want jwt secret validation error", err)
	}
}

func TestBuildHAL(t *testing.T) {
	cfg := config.EffectsConfig{
		HAL:          config.HALVersionConfig{Type: "aidl", Major: 1},
		MinDeviceHAL: config.HALVersionConfig{Type: "hidl", Major: 6},
		Library: []config.EffectLibraryEntry{
			{Name: "Equalizer", UUID: "c8e70ecd-48ca-456e-8a4f-0002a5d5c51b"},
		},
	}

	catalog, factory, minVersion, err := buildHAL(cfg)
	if err != nil {
		t.Fatalf("buildHAL() error = %v", err)
	}
	if catalog.Len() != 1 {
		t.Errorf("catalog.Len() = %d, want 1", catalog.Len())
	}
	if factory.VersionInfo().Type != effect.HalTypeAIDL {
		t.Errorf("factory HAL = %v, want aidl", factory.VersionInfo())
	}
	if minVersion.Type != effect.HalTypeHIDL || minVersion.Major != 6 {
		t.Errorf("minVersion = %v", minVersion)
	}

	cfg.Library[0].UUID = "not-a-uuid"
	if _, _, _, err := buildHAL(cfg); err == nil {
		t.Error("buildHAL() accepted an invalid library UUID")
	}

	cfg.Library = nil
	cfg.HAL.Type = "corba"
	if _, _, _, err := buildHAL(cfg); !errors.Is(err, effect.ErrUnknownHalType) {
		t.Errorf("buildHAL() error = %v, want ErrUnknownHalType", err)
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("GRAYLOGIC_FX_JWT_SECRET", "")
	path := writeConfig(t, "security:\n  jwt:\n    secret: \""+testSecret+"\"\n")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", path, "--client", "com.example.player", "--role", "admin", "--pid", "42"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	id := claims.Identity()
	if id.ClientID != "com.example.player" || id.Role != auth.RoleAdmin || id.PID != 42 {
		t.Errorf("identity = %+v", id)
	}
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Setenv("GRAYLOGIC_FX_JWT_SECRET", "")
	path := writeConfig(t, "security:\n  jwt:\n    secret: \""+testSecret+"\"\n")

	tests := []struct {
		name string
		args []string
	}{
		{"missing client", []string{"token", "--config", path}},
		{"invalid role", []string{"token", "--config", path, "--client", "c", "--role", "root"}},
		{"invalid client", []string{"token", "--config", path, "--client", "has spaces"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err == nil {
				t.Error("Execute() expected error")
			}
		})
	}
}

func TestFetchDump(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != dumpPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer admin-token" {
			http.Error(w, `{"code":"unauthorised"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("X-Dump-Degraded", "true")
		w.Write([]byte("\nDevice Effects:\n")) //nolint:errcheck // Test server
	}))
	defer ts.Close()

	var out, errOut bytes.Buffer
	if err := fetchDump(context.Background(), ts.URL+"/", "admin-token", &out, &errOut); err != nil {
		t.Fatalf("fetchDump() error = %v", err)
	}
	if !strings.Contains(out.String(), "Device Effects:") {
		t.Errorf("out = %q", out.String())
	}
	if !strings.Contains(errOut.String(), "partial") {
		t.Errorf("errOut = %q, want degraded warning", errOut.String())
	}

	err := fetchDump(context.Background(), ts.URL, "wrong", &out, &errOut)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("fetchDump() error = %v, want 401 failure", err)
	}
}

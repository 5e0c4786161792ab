package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/config"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
	"github.com/nursebridge/nursebridge/internal/platform/mailer"
)

func TestMailSender_LogsWithoutRelay(t *testing.T) {
	cfg := &config.Config{}
	if _, ok := mailSender(cfg, zerolog.Nop()).(mailer.LogSender); !ok {
		t.Error("expected LogSender when SMTP_ADDR is empty")
	}
}

func TestMailSender_SMTP(t *testing.T) {
	cfg := &config.Config{SMTPAddr: "smtp.example.com:587", SMTPUsername: "u", SMTPPassword: "p", SMTPFrom: "from@example.com"}
	s, ok := mailSender(cfg, zerolog.Nop()).(mailer.SMTPSender)
	if !ok {
		t.Fatal("expected SMTPSender when SMTP_ADDR is set")
	}
	if s.Addr != cfg.SMTPAddr || s.From != cfg.SMTPFrom || s.Username != "u" {
		t.Errorf("unexpected sender %+v", s)
	}
}

func TestOpenBlobStore(t *testing.T) {
	cfg := &config.Config{StorageDir: t.TempDir(), StorageVersioning: true}
	store, closeFn, err := openBlobStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if store == nil {
		t.Fatal("expected store")
	}
}

func TestOpenBlobStore_Encrypted(t *testing.T) {
	cfg := &config.Config{
		StorageDir:           filepath.Join(t.TempDir(), "nested"),
		StorageEncryptionKey: strings.Repeat("ab", 32),
	}
	_, closeFn, err := openBlobStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeFn()
}

func TestOpenBlobStore_BadKey(t *testing.T) {
	cfg := &config.Config{StorageDir: t.TempDir(), StorageEncryptionKey: "not-hex"}
	if _, _, err := openBlobStore(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for malformed encryption key")
	}
}

func TestPublicPrefixes(t *testing.T) {
	skip := auth.PublicPathSkipper(publicPrefixes...)
	e := echo.New()
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/api/v1/auth/sign-in", true},
		{"/api/v1/auth/sign-up", true},
		{"/api/v1/account/me", false},
		{"/api/v1/visits", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())
			if got := skip(c); got != tt.want {
				t.Errorf("skip(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range []interface{ Name() string }{
		serveCmd(), migrateCmd(), seedCmd(), sweepCredentialsCmd(), snapshotAnalyticsCmd(),
	} {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "seed", "sweep-credentials", "snapshot-analytics"} {
		if !names[want] {
			t.Errorf("missing command %s", want)
		}
	}

	sub := map[string]bool{}
	for _, c := range migrateCmd().Commands() {
		sub[c.Name()] = true
	}
	if !sub["up"] || !sub["status"] {
		t.Errorf("migrate subcommands: %v", sub)
	}
}

func TestSeedCmd_Flags(t *testing.T) {
	cmd := seedCmd()
	for _, f := range []string{"nurses", "pharmacies", "visits", "password", "seed"} {
		if cmd.Flags().Lookup(f) == nil {
			t.Errorf("missing flag --%s", f)
		}
	}
}

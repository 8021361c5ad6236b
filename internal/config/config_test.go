package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q, want %q", cfg.GRPCAddr(), "0.0.0.0:50051")
	}
	if cfg.StoreDriver != StoreMemory || cfg.ReservationsDriver != StoreMemory {
		t.Fatalf("drivers = %s/%s, want memory/memory", cfg.StoreDriver, cfg.ReservationsDriver)
	}
	if cfg.HoldWindow != 5*time.Minute {
		t.Fatalf("HoldWindow = %v, want 5m", cfg.HoldWindow)
	}
	if cfg.SlotGranularity != 15*time.Minute {
		t.Fatalf("SlotGranularity = %v, want 15m", cfg.SlotGranularity)
	}
	if cfg.CountdownTick != time.Second {
		t.Fatalf("CountdownTick = %v, want 1s", cfg.CountdownTick)
	}
	if cfg.UsesPostgres() {
		t.Fatalf("UsesPostgres = true with memory drivers")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOOKLY_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("BOOKLY_RESERVATIONS_DRIVER", "Redis")
	t.Setenv("BOOKLY_BOOKING_HOLD_WINDOW", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q, want %q", cfg.GRPCAddr(), "127.0.0.1:6000")
	}
	if cfg.ReservationsDriver != StoreRedis {
		t.Fatalf("ReservationsDriver = %q, want %q", cfg.ReservationsDriver, StoreRedis)
	}
	if cfg.HoldWindow != 90*time.Second {
		t.Fatalf("HoldWindow = %v, want 90s", cfg.HoldWindow)
	}
	if cfg.KafkaBrokers != "k1:9092,k2:9092" {
		t.Fatalf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"unknown store", "BOOKLY_STORE_DRIVER", "redis"},
		{"unknown reservations", "BOOKLY_RESERVATIONS_DRIVER", "etcd"},
		{"bad duration", "BOOKLY_SHUTDOWN_TIMEOUT", "soon"},
		{"sub-minute granularity", "BOOKLY_BOOKING_SLOT_GRANULARITY", "90s"},
		{"zero hold", "BOOKLY_BOOKING_HOLD_WINDOW", "0s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		" WARN ":   slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"info":     slog.LevelInfo,
		"verbose?": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

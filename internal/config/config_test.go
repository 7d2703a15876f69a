package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"

	"github.com/jacentio/fgo/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fgo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PRIVATE_KEYS", "")
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Defaults()
	if diff := cmp.Diff(want.Networks, cfg.Networks); diff != "" {
		t.Errorf("networks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Tables, cfg.Tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
	if cfg.Network != "localhost" {
		t.Errorf("expected network 'localhost', got %q", cfg.Network)
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing disabled by default")
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("PRIVATE_KEYS", "")
	path := writeConfig(t, `
network: mumbai
networks:
  mumbai:
    region: eu-west-1
    profile: garments
    table_prefix: test-
tables:
  num_shards: 16
  burn_retention: 1h
tracing:
  enabled: true
  exporter: none
`)

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	n, err := cfg.ActiveNetwork()
	if err != nil {
		t.Fatalf("ActiveNetwork: %v", err)
	}
	if diff := cmp.Diff(Network{Region: "eu-west-1", Profile: "garments", TablePrefix: "test-"}, n); diff != "" {
		t.Errorf("network mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "none" {
		t.Errorf("expected tracing enabled with no exporter, got %+v", cfg.Tracing)
	}

	sc, err := cfg.StoreConfig()
	if err != nil {
		t.Fatalf("StoreConfig: %v", err)
	}
	want := store.Config{
		RegistryTable:     "test-fgo_registries",
		ChildTable:        "test-fgo_child_templates",
		ParentTable:       "test-fgo_parent_templates",
		RelationshipTable: "test-fgo_relationships",
		NumShards:         16,
		BurnRetention:     time.Hour,
	}
	if diff := cmp.Diff(want, sc); diff != "" {
		t.Errorf("store config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FGO_NETWORK", "polygon")
	t.Setenv("FGO_TABLES_NUM_SHARDS", "4")
	t.Setenv("PRIVATE_KEYS", " 0xabc , ,def")

	cfg, err := Load(viper.New(), writeConfig(t, "network: localhost\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "polygon" {
		t.Errorf("expected env network 'polygon', got %q", cfg.Network)
	}
	if cfg.Tables.NumShards != 4 {
		t.Errorf("expected 4 shards from env, got %d", cfg.Tables.NumShards)
	}
	if diff := cmp.Diff([]string{"0xabc", "def"}, cfg.PrivateKeys); diff != "" {
		t.Errorf("private keys mismatch (-want +got):\n%s", diff)
	}
}

func TestActiveNetwork_Unknown(t *testing.T) {
	cfg := Defaults()
	cfg.Network = "goerli"

	if _, err := cfg.ActiveNetwork(); !errors.Is(err, ErrUnknownNetwork) {
		t.Errorf("expected ErrUnknownNetwork, got %v", err)
	}
	if _, err := cfg.StoreConfig(); !errors.Is(err, ErrUnknownNetwork) {
		t.Errorf("expected ErrUnknownNetwork from StoreConfig, got %v", err)
	}
}

func TestSigners(t *testing.T) {
	signers, err := Signers([]string{DevKeys[0], "0x" + DevKeys[1]})
	if err != nil {
		t.Fatalf("Signers: %v", err)
	}
	want := []common.Address{
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	}
	for i, s := range signers {
		if s.Address != want[i] {
			t.Errorf("signer %d: expected %s, got %s", i, want[i].Hex(), s.Address.Hex())
		}
	}
}

func TestSigners_InvalidKey(t *testing.T) {
	if _, err := Signers([]string{"not-a-key"}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestConfigSigners(t *testing.T) {
	tests := []struct {
		name    string
		network string
		keys    []string
		want    int
		err     error
	}{
		{"localhost falls back to dev keys", "localhost", nil, 2, nil},
		{"explicit keys win", "localhost", []string{DevKeys[1]}, 1, nil},
		{"remote network needs keys", "polygon", nil, 0, ErrNoSigners},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Network = tt.network
			cfg.PrivateKeys = tt.keys

			signers, err := cfg.Signers()
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if len(signers) != tt.want {
				t.Errorf("expected %d signers, got %d", tt.want, len(signers))
			}
		})
	}
}

func TestLoadLambda_Defaults(t *testing.T) {
	cfg, err := LoadLambda()
	if err != nil {
		t.Fatalf("LoadLambda: %v", err)
	}
	if diff := cmp.Diff(store.DefaultConfig(), cfg.StoreConfig()); diff != "" {
		t.Errorf("store config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLambda_Env(t *testing.T) {
	t.Setenv("FGO_PARENT_TABLE", "prod-parents")
	t.Setenv("FGO_NUM_SHARDS", "8")
	t.Setenv("FGO_BURN_RETENTION", "48h")
	t.Setenv("FGO_LOG_LEVEL", "debug")

	cfg, err := LoadLambda()
	if err != nil {
		t.Fatalf("LoadLambda: %v", err)
	}
	sc := cfg.StoreConfig()
	if sc.ParentTable != "prod-parents" || sc.NumShards != 8 || sc.BurnRetention != 48*time.Hour {
		t.Errorf("unexpected store config %+v", sc)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Level())
	}
}

func TestLoadLambda_InvalidShards(t *testing.T) {
	t.Setenv("FGO_NUM_SHARDS", "many")
	if _, err := LoadLambda(); err == nil {
		t.Error("expected parse error")
	}
}

func TestLambdaLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Lambda{LogLevel: in}).Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
verification:
  similarityThreshold: 0.9
ranking:
  totalLimit: 10
credibility:
  sources:
    local-paper: 0.65
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if cfg.Verification.SimilarityThreshold != 0.9 {
		t.Fatalf("expected threshold 0.9, got %v", cfg.Verification.SimilarityThreshold)
	}
	if cfg.Verification.MinCredibility != 0.6 {
		t.Fatalf("expected default min credibility, got %v", cfg.Verification.MinCredibility)
	}
	if cfg.Verification.WindowDays != 2 {
		t.Fatalf("expected default window 2, got %d", cfg.Verification.WindowDays)
	}
	if cfg.Ranking.TotalLimit != 10 {
		t.Fatalf("expected total limit 10, got %d", cfg.Ranking.TotalLimit)
	}
	if cfg.Ranking.HighVolumeQuota != 0.15 {
		t.Fatalf("expected default quota, got %v", cfg.Ranking.HighVolumeQuota)
	}
	if cfg.Credibility.Sources["local-paper"] != 0.65 {
		t.Fatalf("expected source override, got %v", cfg.Credibility.Sources)
	}
	if cfg.Scheduler.Interval != 2*time.Minute {
		t.Fatalf("expected default interval, got %v", cfg.Scheduler.Interval)
	}
}

func TestParseDurationsAndSanitize(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
scheduler:
  interval: 5m
  timezone: Not/AZone
verification:
  similarityThreshold: 1.7
  minCredibility: -1
ranking:
  highVolumeQuota: 3
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("expected 5m interval, got %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", cfg.Scheduler.Location())
	}
	if cfg.Verification.SimilarityThreshold != 0.85 {
		t.Fatalf("expected threshold reset to 0.85, got %v", cfg.Verification.SimilarityThreshold)
	}
	if cfg.Verification.MinCredibility != 0.6 {
		t.Fatalf("expected min credibility reset to 0.6, got %v", cfg.Verification.MinCredibility)
	}
	if cfg.Ranking.HighVolumeQuota != 0.15 {
		t.Fatalf("expected quota reset to 0.15, got %v", cfg.Ranking.HighVolumeQuota)
	}
}

func TestParseZeroQuotaUsesDefault(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("ranking:\n  highVolumeQuota: 0\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Ranking.HighVolumeQuota != 0.15 {
		t.Fatalf("expected zero quota replaced by 0.15, got %v", cfg.Ranking.HighVolumeQuota)
	}
	if cfg.HTTP.RunTimeout != 15*time.Minute {
		t.Fatalf("expected default run timeout, got %v", cfg.HTTP.RunTimeout)
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("ranking: [unclosed")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  provider: cohere\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://digest@localhost/digest")
	t.Setenv(cohereAPIKeyEnv, "co-key")
	t.Setenv(openAIAPIKeyEnv, "oa-key")
	t.Setenv(kafkaBrokersEnv, "k1:9092, k2:9092,")
	t.Setenv(httpAddrEnv, "")

	cfg := Load()

	if cfg.Database.DSN != "postgres://digest@localhost/digest" {
		t.Fatalf("unexpected dsn: %s", cfg.Database.DSN)
	}
	if cfg.Embedding.APIKey != "co-key" {
		t.Fatalf("expected cohere key for embeddings, got %q", cfg.Embedding.APIKey)
	}
	if cfg.Analysis.APIKey != "oa-key" {
		t.Fatalf("expected openai key for analysis, got %q", cfg.Analysis.APIKey)
	}
	if len(cfg.Notifications.Kafka.Brokers) != 2 || cfg.Notifications.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Notifications.Kafka.Brokers)
	}
	if cfg.HTTP.Addr != "" {
		t.Fatalf("expected http server disabled, got %q", cfg.HTTP.Addr)
	}
	if len(cfg.Sites) == 0 {
		t.Fatalf("expected default sites")
	}
}

func TestTelegramChatID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{raw: "12345", want: 12345, ok: true},
		{raw: " -100200 ", want: -100200, ok: true},
		{raw: "", ok: false},
		{raw: "@channel", ok: false},
	}

	for _, tc := range cases {
		got, ok := TelegramConfig{ChatID: tc.raw}.TelegramChatID()
		if ok != tc.ok || got != tc.want {
			t.Fatalf("TelegramChatID(%q) = %d, %v; want %d, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

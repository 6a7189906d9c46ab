package config

import "testing"

func TestLoadIncludesRetrievalAndRollupDefaults(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "")
	t.Setenv("SEARCH_MIN_CONTENT_LENGTH", "")
	t.Setenv("EMBEDDING_DIM", "")
	t.Setenv("DEFAULT_RULE_PACK", "")
	t.Setenv("ROLLUP_MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.SearchTopK != 20 {
		t.Fatalf("expected default top k 20, got %d", cfg.SearchTopK)
	}
	if cfg.SearchMinContentLength != 20 {
		t.Fatalf("expected default min content length 20, got %d", cfg.SearchMinContentLength)
	}
	if cfg.EmbeddingDim != 768 {
		t.Fatalf("expected default embedding dim 768, got %d", cfg.EmbeddingDim)
	}
	if cfg.DefaultRulePack != "ga-default" {
		t.Fatalf("expected default rule pack ga-default, got %q", cfg.DefaultRulePack)
	}
	if cfg.RollupMaxAttempts != 3 {
		t.Fatalf("expected default rollup attempts 3, got %d", cfg.RollupMaxAttempts)
	}
	if cfg.NATSSubject != "deals.facts.changed" {
		t.Fatalf("expected default nats subject, got %q", cfg.NATSSubject)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "7")
	t.Setenv("EMBEDDING_DIM", "1536")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("DEFAULT_RULE_PACK", "fl-condo")

	cfg := Load()
	if cfg.SearchTopK != 7 {
		t.Fatalf("expected top k 7, got %d", cfg.SearchTopK)
	}
	if cfg.EmbeddingDim != 1536 {
		t.Fatalf("expected embedding dim 1536, got %d", cfg.EmbeddingDim)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5 rps, got %f", cfg.APIRateLimitRPS)
	}
	if cfg.DefaultRulePack != "fl-condo" {
		t.Fatalf("expected rule pack override, got %q", cfg.DefaultRulePack)
	}
}

func TestLoadKeepsExplicitlyEmptyQdrantURL(t *testing.T) {
	t.Setenv("QDRANT_URL", "")

	cfg := Load()
	if cfg.QdrantURL != "" {
		t.Fatalf("expected empty qdrant url to stay empty, got %q", cfg.QdrantURL)
	}
}

func TestLoadFallsBackOnUnparsableValues(t *testing.T) {
	t.Setenv("SEARCH_TOP_K", "lots")
	t.Setenv("API_RATE_LIMIT_RPS", "fast")

	cfg := Load()
	if cfg.SearchTopK != 20 {
		t.Fatalf("expected fallback top k 20, got %d", cfg.SearchTopK)
	}
	if cfg.APIRateLimitRPS != 50 {
		t.Fatalf("expected fallback rate limit 50, got %f", cfg.APIRateLimitRPS)
	}
}

package newsbase

import "time"

// Config holds all configuration for the newsbase engine. Zero-value
// fields are replaced by DefaultConfig with sensible defaults; the same
// pattern the individual component constructors use for their own
// sub-configs.
type Config struct {
	// MetadataDBPath is the path to the relational metadata database.
	MetadataDBPath string `json:"metadata_db_path"`

	// VectorStoreRoot is the directory under which per-user vector
	// index directories (<root>/user_<id>/) are created.
	VectorStoreRoot string `json:"vector_store_root"`

	Embedder       EmbedderConfig       `json:"embedder"`
	Reranker       RerankerConfig       `json:"reranker"`
	LLM            LLMConfig            `json:"llm"`
	Fetcher        FetcherConfig        `json:"fetcher"`
	Scheduler      SchedulerConfig      `json:"scheduler"`
	Executor       ExecutorConfig       `json:"executor"`
	Search         SearchConfig         `json:"search"`
	Upload         UploadConfig         `json:"upload"`
	ExternalSearch ExternalSearchConfig `json:"external_search"`

	VectorStore VectorStoreConfig `json:"vector_store"`
}

type EmbedderConfig struct {
	ModelID   string `json:"model_id"`
	BatchSize int    `json:"batch_size"`
	Provider  string `json:"provider"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
}

type RerankerConfig struct {
	ModelID   string  `json:"model_id"`
	BatchSize int     `json:"batch_size"`
	Sharpness float64 `json:"sharpness"`
}

// ExternalSearchConfig holds the Google Custom Search credentials the
// Web Fallback component uses (spec §4.15). Empty APIKey/EngineID
// disables external search; the pipeline degrades gracefully.
type ExternalSearchConfig struct {
	APIKey   string `json:"api_key"`
	EngineID string `json:"engine_id"`
}

type LLMConfig struct {
	Endpoint string        `json:"endpoint"`
	ModelID  string        `json:"model_id"`
	Provider string        `json:"provider"`
	APIKey   string        `json:"api_key"`
	Timeout  time.Duration `json:"timeout_s"`
}

type FetcherConfig struct {
	UserAgent string        `json:"user_agent"`
	PerHostRPS float64      `json:"per_host_rps"`
	Timeout    time.Duration `json:"timeout_s"`
}

type SchedulerConfig struct {
	RSSDefaultCadenceSeconds int `json:"rss_default_cadence_s"`
}

type ExecutorConfig struct {
	Workers       int `json:"workers"`
	QueueCapacity int `json:"queue_capacity"`
}

type SearchConfig struct {
	DefaultLimit               int     `json:"default_limit"`
	ExternalTriggerThreshold   float64 `json:"external_trigger_threshold"`
	ExternalTriggerMinResults  int     `json:"external_trigger_min_results"`
}

type UploadConfig struct {
	MaxBytes int64 `json:"max_bytes"`
}

type VectorStoreConfig struct {
	CompactThresholdRatio float64 `json:"compact_threshold_ratio"`
	CompactThresholdCount int     `json:"compact_threshold_count"`
	LRUCapacity           int     `json:"lru_capacity"`
}

// DefaultConfig returns a Config with the defaults named throughout
// spec §6.4.
func DefaultConfig() Config {
	return Config{
		MetadataDBPath:  "data/newsbase.db",
		VectorStoreRoot: "data/vectors",
		Embedder: EmbedderConfig{
			ModelID:   "all-MiniLM-L6-v2",
			BatchSize: 32,
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
		},
		Reranker: RerankerConfig{
			ModelID:   "cross-encoder/ms-marco-MiniLM-L-6-v2",
			BatchSize: 16,
			Sharpness: 6.0,
		},
		LLM: LLMConfig{
			Endpoint: "http://localhost:11434",
			ModelID:  "llama3.1:8b",
			Provider: "ollama",
			Timeout:  120 * time.Second,
		},
		Fetcher: FetcherConfig{
			UserAgent:  "newsbase-bot/1.0",
			PerHostRPS: 1.0,
			Timeout:    30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			RSSDefaultCadenceSeconds: 1800,
		},
		Executor: ExecutorConfig{
			Workers:       4,
			QueueCapacity: 256,
		},
		Search: SearchConfig{
			DefaultLimit:              10,
			ExternalTriggerThreshold:  0.35,
			ExternalTriggerMinResults: 3,
		},
		Upload: UploadConfig{
			MaxBytes: 16 << 20,
		},
		VectorStore: VectorStoreConfig{
			CompactThresholdRatio: 0.2,
			CompactThresholdCount: 1000,
			LRUCapacity:           32,
		},
	}
}

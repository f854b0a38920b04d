package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Milvus      MilvusConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	SourceGraph SourceGraphConfig
	LLM         LLMConfig
	Search      SearchConfig
	Verify      VerifyConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type SourceGraphConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type SearchConfig struct {
	SerpAPIKey string
	MaxResults int
	TimeoutSec int
}

// VerifyConfig carries the caller-facing defaults of the verification
// pipeline. Enhance and ExternalSearch gate whole pipeline branches; the
// per-request options override them.
type VerifyConfig struct {
	Enhance           bool
	ExternalSearch    bool
	TopK              int
	ClarifyTimeoutSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/claimlens")

	viper.SetEnvPrefix("CLAIMLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "news_evidence_v1")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/claimlens.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("sourcegraph.enabled", false)
	viper.SetDefault("sourcegraph.uri", "bolt://localhost:7687")
	viper.SetDefault("sourcegraph.username", "neo4j")
	viper.SetDefault("sourcegraph.database", "neo4j")

	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 1000)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("search.maxResults", 5)
	viper.SetDefault("search.timeoutSec", 10)

	viper.SetDefault("verify.enhance", true)
	viper.SetDefault("verify.externalSearch", true)
	viper.SetDefault("verify.topK", 10)
	viper.SetDefault("verify.clarifyTimeoutSec", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}

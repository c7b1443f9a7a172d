// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Internal      InternalConfig      `mapstructure:"internal"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Vectorize     VectorizeConfig     `mapstructure:"vectorize"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// InternalConfig 存储内部接口的共享密钥。
// APIKey 为空时所有内部接口一律拒绝。
type InternalConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
// Enabled 为 false 时，触发请求在进程内异步执行。
type KafkaConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Region          string `mapstructure:"region"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string               `mapstructure:"api_key"`
	BaseURL    string               `mapstructure:"base_url"`
	Model      string               `mapstructure:"model"`
	Dimensions int                  `mapstructure:"dimensions"`
	Timeout    time.Duration        `mapstructure:"timeout"`
	Cache      EmbeddingCacheConfig `mapstructure:"cache"`
}

// EmbeddingCacheConfig 控制以内容指纹为键的向量缓存。
type EmbeddingCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// VectorizeConfig 存储向量化批处理的参数。
// ChunkSize 与 ChunkOverlap 以近似 token 为单位，按 CharsPerToken 换算为字符数。
type VectorizeConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	ChunkOverlap  int           `mapstructure:"chunk_overlap"`
	CharsPerToken int           `mapstructure:"chars_per_token"`
	Concurrency   int           `mapstructure:"concurrency"`
	BatchTimeout  time.Duration `mapstructure:"batch_timeout"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
}

// setDefaults 注册所有配置项的默认值。
// 注册过的键才能被环境变量覆盖（viper 的 Unmarshal 只遍历已知键）。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("internal.api_key", "")

	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 100)
	v.SetDefault("database.mysql.conn_max_lifetime", time.Hour)
	v.SetDefault("database.mysql.auto_migrate", true)
	v.SetDefault("database.redis.addr", "127.0.0.1:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "127.0.0.1:9092")
	v.SetDefault("kafka.topic", "kb-vectorize")
	v.SetDefault("kafka.group_id", "kb-vectorizer-consumer")
	v.SetDefault("kafka.max_attempts", 3)

	v.SetDefault("tika.server_url", "http://127.0.0.1:9998")
	v.SetDefault("tika.timeout", 2*time.Minute)

	v.SetDefault("elasticsearch.enabled", false)
	v.SetDefault("elasticsearch.addresses", "http://127.0.0.1:9200")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "document_vectors")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "documents")
	v.SetDefault("minio.region", "us-east-1")

	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.cache.enabled", false)
	v.SetDefault("embedding.cache.ttl", 7*24*time.Hour)

	v.SetDefault("vectorize.batch_size", 50)
	v.SetDefault("vectorize.max_batch_size", 200)
	v.SetDefault("vectorize.chunk_size", 1000)
	v.SetDefault("vectorize.chunk_overlap", 200)
	v.SetDefault("vectorize.chars_per_token", 4)
	v.SetDefault("vectorize.concurrency", 1)
	v.SetDefault("vectorize.batch_timeout", 15*time.Minute)
	v.SetDefault("vectorize.stale_after", 30*time.Minute)
}

// Load 从指定路径读取 YAML 配置，叠加默认值与 KBV_ 前缀的环境变量。
// configPath 为空时只使用默认值与环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("KBV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查配置项之间的约束。
func (c Config) Validate() error {
	v := c.Vectorize
	if v.ChunkSize <= 0 {
		return fmt.Errorf("vectorize.chunk_size 必须大于 0，当前为 %d", v.ChunkSize)
	}
	if v.ChunkOverlap < 0 || v.ChunkOverlap >= v.ChunkSize {
		return fmt.Errorf("vectorize.chunk_overlap 必须在 [0, chunk_size) 之间，当前为 %d", v.ChunkOverlap)
	}
	if v.CharsPerToken <= 0 {
		return fmt.Errorf("vectorize.chars_per_token 必须大于 0，当前为 %d", v.CharsPerToken)
	}
	if v.MaxBatchSize <= 0 || v.BatchSize <= 0 || v.BatchSize > v.MaxBatchSize {
		return fmt.Errorf("vectorize.batch_size (%d) 必须在 [1, max_batch_size=%d] 之间", v.BatchSize, v.MaxBatchSize)
	}
	if v.Concurrency <= 0 {
		return fmt.Errorf("vectorize.concurrency 必须大于 0，当前为 %d", v.Concurrency)
	}
	// 回收阈值必须长于批处理的最长运行时间，否则仍在运行的文档会被另一次运行重新认领
	if v.StaleAfter < 0 {
		return fmt.Errorf("vectorize.stale_after 不能为负数，当前为 %s", v.StaleAfter)
	}
	if v.StaleAfter > 0 && (v.BatchTimeout <= 0 || v.StaleAfter <= v.BatchTimeout) {
		return fmt.Errorf("vectorize.stale_after (%s) 必须大于 vectorize.batch_timeout (%s)，且 batch_timeout 必须大于 0",
			v.StaleAfter, v.BatchTimeout)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model 不能为空")
	}
	return nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Vision      VisionConfig      `yaml:"vision"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	// PublicBaseURL, when set, is used to build long-lived public URLs for
	// stored images. When empty, time-bounded presigned URLs are issued.
	PublicBaseURL string `yaml:"public_base_url"`
}

// Configured reports whether a blob store was provided at all. Image
// endpoints answer storage_not_configured when it wasn't.
func (m MinIOConfig) Configured() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

type VisionConfig struct {
	ModelsDir string `yaml:"models_dir"`
	// DetectionThreshold is the fast-pass minimum face score.
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// RetryThreshold is the lowered score used by the high-recall retry pass.
	RetryThreshold float64 `yaml:"retry_threshold"`
	// RetryUpscale is the factor the frame is upsampled by before the retry pass.
	RetryUpscale int `yaml:"retry_upscale"`
}

type RecognitionConfig struct {
	// DistanceThreshold is the default maximum Euclidean distance for a
	// login match when the request does not carry its own threshold.
	DistanceThreshold float64 `yaml:"distance_threshold"`
	// MatchLimit is the default number of nearest candidates fetched.
	MatchLimit int `yaml:"match_limit"`
	// AttendanceCooldown suppresses duplicate attendance entries for the
	// same identity within this window.
	AttendanceCooldown time.Duration `yaml:"attendance_cooldown"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A local .env file is honoured when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.6
	}
	if cfg.Vision.RetryThreshold == 0 {
		cfg.Vision.RetryThreshold = 0.4
	}
	if cfg.Vision.RetryUpscale == 0 {
		cfg.Vision.RetryUpscale = 2
	}
	if cfg.Recognition.DistanceThreshold == 0 {
		cfg.Recognition.DistanceThreshold = 0.5
	}
	if cfg.Recognition.MatchLimit == 0 {
		cfg.Recognition.MatchLimit = 1
	}
	if cfg.Recognition.AttendanceCooldown == 0 {
		cfg.Recognition.AttendanceCooldown = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEID_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEID_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEID_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEID_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEID_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEID_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEID_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEID_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEID_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEID_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEID_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEID_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEID_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEID_DISTANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.DistanceThreshold = f
		}
	}
	if v := os.Getenv("FACEID_ATTENDANCE_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recognition.AttendanceCooldown = d
		}
	}
}

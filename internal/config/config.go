package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type TelegramConfig struct {
	AppId    int    `json:"app_id" env-default:"0"`
	AppHash  string `json:"app_hash" env-default:""`
	BotToken string `json:"bot_token" env-default:""`
	OwnerId  int64  `json:"owner_id" env-default:"0"`
	Proxy    string `json:"proxy" env-default:""`
	IPv6     bool   `json:"ipv6" env-default:"false"`
}

type EngineHTTPConfig struct {
	Timeout    int `json:"timeout" env-default:"30"`
	MaxRetries int `json:"max_retries" env-default:"3"`
}

type EngineBatchConfig struct {
	Enabled       bool    `json:"enabled" env-default:"true"`
	Size          int     `json:"size" env-default:"100"`
	FlushInterval float64 `json:"flush_interval" env-default:"1"`
}

type SearchEngineConfig struct {
	Engine string            `json:"engine" env-default:"http"`
	HTTP   EngineHTTPConfig  `json:"http"`
	Batch  EngineBatchConfig `json:"batch"`
}

type BotConfig struct {
	// Mode accepts a single value or a set drawn from private, group, public.
	Mode                 []string           `json:"mode" env-default:"private"`
	AllowedGroups        []int64            `json:"allowed_groups"`
	AllowedUsers         []int64            `json:"allowed_users"`
	Admins               []int64            `json:"admins"`
	UserGroupPermissions map[string][]int64 `json:"user_group_permissions"`
}

type PrivacyConfig struct {
	StorageFile string `json:"storage_file" env-default:"privacy.json"`
}

type DatabaseConfig struct {
	Path      string `json:"path" env-default:"query_logs.db"`
	Enabled   bool   `json:"enabled" env-default:"true"`
	RelayPath string `json:"relay_path" env-default:"relay_messages.db"`
}

type SyncConfig struct {
	Enabled             bool    `json:"enabled" env-default:"true"`
	CheckpointFile      string  `json:"checkpoint_file" env-default:"sync_checkpoint.json"`
	BatchSize           int     `json:"batch_size" env-default:"100"`
	RetryOnError        bool    `json:"retry_on_error" env-default:"true"`
	MaxRetries          int     `json:"max_retries" env-default:"5"`
	ResumeOnRestart     bool    `json:"resume_on_restart" env-default:"true"`
	DelayBetweenBatches float64 `json:"delay_between_batches" env-default:"1"`
	ClearCompleted      bool    `json:"clear_completed" env-default:"false"`
}

type ServiceEndpoint struct {
	BaseURL string `json:"base_url" env-default:""`
}

type ServicesConfig struct {
	Bot     ServiceEndpoint `json:"bot"`
	Userbot ServiceEndpoint `json:"userbot"`
	Search  ServiceEndpoint `json:"search"`
	// Gateway is the account-session gateway the ingestor reads history
	// and live events from.
	Gateway ServiceEndpoint `json:"gateway"`
}

type AuthConfig struct {
	UseJWT           bool   `json:"use_jwt" env-default:"true"`
	Issuer           string `json:"issuer" env-default:""`
	Audience         string `json:"audience" env-default:""`
	PublicKeyPath    string `json:"public_key_path" env-default:""`
	PrivateKeyPath   string `json:"private_key_path" env-default:""`
	PublicKeyInline  string `json:"public_key_inline" env-default:""`
	PrivateKeyInline string `json:"private_key_inline" env-default:""`
	TokenTTL         int    `json:"token_ttl" env-default:"300"`
}

type HTTPConfig struct {
	Listen      string `json:"listen" env-default:"0.0.0.0"`
	BotPort     int    `json:"bot_port" env-default:"8081"`
	UserbotPort int    `json:"userbot_port" env-default:"8082"`
	SearchPort  int    `json:"search_port" env-default:"8080"`
}

type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	SearchEngine SearchEngineConfig `json:"search_engine"`
	Bot          BotConfig          `json:"bot"`
	Privacy      PrivacyConfig      `json:"privacy"`
	Database     DatabaseConfig     `json:"database"`
	Sync         SyncConfig         `json:"sync"`
	Services     ServicesConfig     `json:"services"`
	Auth         AuthConfig         `json:"auth"`
	HTTP         HTTPConfig         `json:"http"`
	Env          string             `json:"env" env-default:"local"`
}

var instance *Config
var once sync.Once

// MustLoad reads the JSON configuration file and exits the process on any
// missing required field. Configuration is read-only after load.
func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
		if err = instance.check(); err != nil {
			instance = nil
			log.Fatal(fmt.Errorf("config: %w", err))
		}
	})
	return instance
}

func (c *Config) check() error {
	if c.Telegram.OwnerId == 0 {
		return fmt.Errorf("telegram.owner_id is required")
	}
	if c.Auth.UseJWT && c.Auth.PublicKeyPath == "" && c.Auth.PublicKeyInline == "" {
		return fmt.Errorf("auth.public_key_path or auth.public_key_inline is required when auth.use_jwt is set")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	return nil
}

package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

# Role of this process.
# "phone" owns the remote store connection and serves the companion.
# "watch" is the thin companion that dials the phone.
# Default: "phone"
role = "{{ .role }}"

# Signed-in user id used for remote favorites.
user_id = ""

[server]
  # Hostname or IP address for the local API to listen on.
  # Default: "{{ .host }}"
  host = "{{ .host }}"

  # Port for the local API.
  # Default: 8383
  port = 8383

  # Base URL when served under a subdirectory.
  # Optional.
  #base_url = ""

[database]
  # Local durable store.
  # Supported: "sqlite", "postgres"
  # Default: "sqlite"
  type = "sqlite"

  [database.postgres]
    host = "localhost"
    port = 5432
    database = "echosync"
    username = "postgres"
    password = "postgres"
    ssl_mode = "disable"

[logging]
  # Log file directory. Empty logs to stdout only.
  # Default: ""
  path = ""

  # Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Default: 50
  max_file_size = 50

  # Default: 3
  max_backup_count = 3

[remote]
  # Remote document store. "http" or "memory".
  # Default: "http"
  type = "http"
  base_url = "http://127.0.0.1:8080"
  token = ""
  timeout = "10s"

[sync]
  # Delay before retrying failed favorite operations.
  # Default: "5s"
  retry_delay = "5s"

  # Upper bound for exponential retry. Equal to retry_delay keeps the delay flat.
  # Default: "5s"
  max_retry_delay = "5s"

  # Periodic flush safety net.
  # Default: "5m"
  flush_interval = "5m"

[peer]
  # Watch role: websocket URL of the phone's peer endpoint.
  phone_url = "ws://127.0.0.1:8383/api/peer"

  # Watch role: token presented when pairing.
  pairing_token = "{{ .pairingToken }}"

  # Phone role: bcrypt hash of the accepted pairing token.
  # Generated on first run from pairing_token.
  pairing_token_hash = "{{ .pairingTokenHash }}"

  # Default: "1.0.0"
  protocol_version = "1.0.0"

  # Default: "3s"
  reconnect_delay = "3s"

  # Default: "5s"
  reply_timeout = "5s"

[content]
  # Affirmations shown per batch. Twice this many are fetched.
  # Default: 50
  batch_size = 50

  # Default: "4h"
  refresh_interval = "4h"

  # Empty means all categories.
  categories = []
`

var generateRandomString = func(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

var hashToken = func(token string) (string, error) {
	return HashPairingToken(token)
}

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(configPath, os.ModePerm)
		if err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		host := "127.0.0.1"
		if _, dockerErr := os.Stat("/.dockerenv"); dockerErr == nil {
			host = "0.0.0.0"
		}

		f, createErr := os.Create(cfgPath)
		if createErr != nil {
			log.Printf("error creating file: %q", createErr)
			return createErr
		}
		defer func(f *os.File) {
			errClose := f.Close()
			if errClose != nil {
				log.Printf("error closing file: %q", errClose)
			}
		}(f)

		token, tokenErr := generateRandomString(16)
		if tokenErr != nil {
			return errors.Wrap(tokenErr, "could not generate pairing token")
		}

		tokenHash, hashErr := hashToken(token)
		if hashErr != nil {
			return errors.Wrap(hashErr, "could not hash pairing token")
		}

		tmpl, tmplErr := template.New("config").Parse(configTemplate)
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "could not create config template")
		}

		tmplVars := map[string]string{
			"role":             string(domain.RolePhone),
			"host":             host,
			"pairingToken":     token,
			"pairingTokenHash": tokenHash,
		}

		var buffer bytes.Buffer
		if execErr := tmpl.Execute(&buffer, &tmplVars); execErr != nil {
			return errors.Wrap(execErr, "could not write config template output")
		}

		if _, writeErr := f.WriteString(buffer.String()); writeErr != nil {
			log.Printf("error writing contents to file: %v %q", configPath, writeErr)
			return writeErr
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
	v      *viper.Viper
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{v: viper.New()}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version:    "dev",
		ConfigPath: "",
		Role:       string(domain.RolePhone),
		Server: domain.ServerConfig{
			Host: "127.0.0.1",
			Port: 8383,
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "echosync",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		Remote: domain.RemoteConfig{
			Type:    "http",
			BaseURL: "http://127.0.0.1:8080",
			Timeout: 10 * time.Second,
		},
		Sync: domain.SyncConfig{
			RetryDelay:    5 * time.Second,
			MaxRetryDelay: 5 * time.Second,
			FlushInterval: 5 * time.Minute,
		},
		Peer: domain.PeerConfig{
			PhoneURL:        "ws://127.0.0.1:8383/api/peer",
			ProtocolVersion: "1.0.0",
			ReconnectDelay:  3 * time.Second,
			ReplyTimeout:    5 * time.Second,
		},
		Content: domain.ContentConfig{
			BatchSize:       50,
			RefreshInterval: 4 * time.Hour,
		},
	}
}

func (c *AppConfig) load(configPath string) {
	c.v.SetConfigType("toml")
	c.v.SetEnvPrefix("echosync")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	if configPath != "" {
		configPath = path.Clean(configPath)
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
		}
		c.v.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		c.v.SetConfigName("config")
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$HOME/.config/echosync")
		c.v.AddConfigPath("$HOME/.echosync")
	}

	if err := c.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Config file not found, using defaults: %s", c.v.ConfigFileUsed())
		} else {
			log.Printf("Config read error: %q. Using defaults.", err)
		}
	}

	if err := c.v.Unmarshal(c.Config); err != nil {
		log.Fatalf("Could not unmarshal config file into struct: %v. Config file used: %s", err, c.v.ConfigFileUsed())
	}
}

// Current returns the active config under lock; reloads swap the pointer.
func (c *AppConfig) Current() *domain.Config {
	c.m.Lock()
	defer c.m.Unlock()
	return c.Config
}

// Update applies a partial in-memory update.
func (c *AppConfig) Update(u domain.ConfigUpdate) error {
	c.m.Lock()
	defer c.m.Unlock()

	if u.LogLevel != nil {
		c.Config.Logging.Level = *u.LogLevel
	}
	if u.LogPath != nil {
		c.Config.Logging.Path = *u.LogPath
	}
	if u.RetryDelay != nil {
		d, err := time.ParseDuration(*u.RetryDelay)
		if err != nil {
			return errors.Wrap(err, "invalid retry_delay %q", *u.RetryDelay)
		}
		c.Config.Sync.RetryDelay = d
	}
	if u.Categories != nil {
		c.Config.Content.Categories = u.Categories
	}
	return nil
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	c.v.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("Config file changed: %s. Reloading configuration.", e.Name)

		if err := c.v.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Error reading config file during dynamic reload")
			return
		}

		newConfig := *c.Config
		if err := c.v.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling config during dynamic reload")
			return
		}

		// role and database can't change under a running process
		newConfig.Role = c.Config.Role
		newConfig.Database = c.Config.Database

		c.Config = &newConfig

		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("Configuration reloaded successfully!")
	})
	c.v.WatchConfig()
}

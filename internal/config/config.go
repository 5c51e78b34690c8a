package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "tunedl"

// Config holds the configuration options for the application.
type Config struct {
	MaxConcurrentDownloads int             `yaml:"maxConcurrentDownloads,omitempty"`
	Download               *DownloadConfig `yaml:"download,omitempty"`
	Plugins                *PluginsConfig  `yaml:"plugins,omitempty"`
	Proxy                  *ProxyConfig    `yaml:"proxy,omitempty"`
	Log                    *LogConfig      `yaml:"log,omitempty"`
	Database               string          `yaml:"database,omitempty"`
}

// DownloadConfig controls the download scheduler.
type DownloadConfig struct {
	Dir               string        `yaml:"dir,omitempty"`
	RetryLimit        int           `yaml:"retryLimit,omitempty"`
	RetryDelay        time.Duration `yaml:"retryDelay,omitempty"`
	InactivityTimeout time.Duration `yaml:"inactivityTimeout,omitempty"`
	RateLimit         int64         `yaml:"rateLimit,omitempty"` // bytes/sec, 0 = unlimited
}

// PluginsConfig controls where plugin scripts are read from and how long they may run.
type PluginsConfig struct {
	Dir     string        `yaml:"dir,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ProxyConfig controls outbound requests made on behalf of plugins.
type ProxyConfig struct {
	RequestDelay time.Duration `yaml:"requestDelay,omitempty"`
	CacheTTL     time.Duration `yaml:"cacheTTL,omitempty"`
	DisableCache bool          `yaml:"disableCache,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	Endpoints    []string      `yaml:"endpoints,omitempty"`
}

type LogConfig struct {
	Debug bool   `yaml:"debug,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// Path returns the default configuration file location.
func Path() string {
	return filepath.Join(xdg.ConfigHome, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	return Load(Path())
}

// Load reads the configuration at path. Missing and empty files yield the defaults and
// zero values fall back to their defaults field by field.
func Load(path string) (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	downloadCfg := zeroOr(cfg.Download, defaults.Download)
	pluginsCfg := zeroOr(cfg.Plugins, defaults.Plugins)
	proxyCfg := zeroOr(cfg.Proxy, defaults.Proxy)
	logCfg := zeroOr(cfg.Log, defaults.Log)

	return &Config{
		MaxConcurrentDownloads: zeroOr(cfg.MaxConcurrentDownloads, defaults.MaxConcurrentDownloads),
		Download: &DownloadConfig{
			Dir:               zeroOr(downloadCfg.Dir, defaults.Download.Dir),
			RetryLimit:        zeroOr(downloadCfg.RetryLimit, defaults.Download.RetryLimit),
			RetryDelay:        zeroOr(downloadCfg.RetryDelay, defaults.Download.RetryDelay),
			InactivityTimeout: zeroOr(downloadCfg.InactivityTimeout, defaults.Download.InactivityTimeout),
			RateLimit:         zeroOr(downloadCfg.RateLimit, defaults.Download.RateLimit),
		},
		Plugins: &PluginsConfig{
			Dir:     zeroOr(pluginsCfg.Dir, defaults.Plugins.Dir),
			Timeout: zeroOr(pluginsCfg.Timeout, defaults.Plugins.Timeout),
		},
		Proxy: &ProxyConfig{
			RequestDelay: zeroOr(proxyCfg.RequestDelay, defaults.Proxy.RequestDelay),
			CacheTTL:     zeroOr(proxyCfg.CacheTTL, defaults.Proxy.CacheTTL),
			DisableCache: zeroOr(proxyCfg.DisableCache, defaults.Proxy.DisableCache),
			Timeout:      zeroOr(proxyCfg.Timeout, defaults.Proxy.Timeout),
			Endpoints:    zeroOr(proxyCfg.Endpoints, defaults.Proxy.Endpoints),
		},
		Log: &LogConfig{
			Debug: zeroOr(logCfg.Debug, defaults.Log.Debug),
			File:  zeroOr(logCfg.File, defaults.Log.File),
		},
		Database: zeroOr(cfg.Database, defaults.Database),
	}, nil
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentDownloads: maxConcurrentDownloads,
		Download: &DownloadConfig{
			Dir:               downloadDir,
			RetryLimit:        retryLimit,
			RetryDelay:        retryDelay,
			InactivityTimeout: inactivityTimeout,
			RateLimit:         rateLimit,
		},
		Plugins: &PluginsConfig{
			Dir:     pluginDir,
			Timeout: pluginTimeout,
		},
		Proxy: &ProxyConfig{
			RequestDelay: requestDelay,
			CacheTTL:     cacheTTL,
			DisableCache: disableCache,
			Timeout:      proxyTimeout,
		},
		Log: &LogConfig{
			Debug: debugLogging,
			File:  logFile,
		},
		Database: databasePath,
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/liuran001/SongProxy-Go/proxy"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// PluginConfig stores plugin-specific configuration as key-value pairs.
type PluginConfig map[string]interface{}

// Config wraps viper and provides typed accessors.
type Config struct {
	v       *viper.Viper
	plugins map[string]PluginConfig
}

var _ proxy.Config = (*Config)(nil)

// Load prepares defaults, a .env file in the working directory and an
// optional INI or viper-readable config file. Environment variables win
// over both files.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	setDefaults(v)

	c := &Config{
		v:       v,
		plugins: make(map[string]PluginConfig),
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".ini") {
		cfg, err := loadINI(v, path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		loadPlugins(cfg, c)
		return c, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("BASE_URL", "")
	v.SetDefault("PRIMARY_API_URL", "https://tunehub.sayqz.com/api")
	v.SetDefault("PRIMARY_API_KEY", "")
	v.SetDefault("FALLBACK_API_URL", "https://api.cenguigui.cn/api/kuwo/")
	v.SetDefault("BITRATE", "320k")
	v.SetDefault("MAX_RETRIES", 2)
	v.SetDefault("RETRY_BACKOFF_MS", 200)
	v.SetDefault("SOURCE_PRIORITY", "kuwo,netease,qq")
	v.SetDefault("FORCE_FALLBACK", false)
	v.SetDefault("UA_FILTER", true)
	v.SetDefault("UA_ALLOW", "MicroMessenger")
	v.SetDefault("QUOTA_STATUS", "402,403")
	v.SetDefault("QUOTA_KEYWORDS", "quota,insufficient,credits,余额,额度,积分")
	v.SetDefault("USER_AGENT", "SongProxy-Go/1.0 (+wechat-song-plugin)")
	v.SetDefault("HEALTH_TTL", "60s")
	v.SetDefault("HEALTH_TIMEOUT", "5s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_SOURCE", false)
	v.SetDefault("LOG_FILE", "./log/songproxy.log")
}

// GetString returns a string value.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns an int value.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a bool value.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetDuration returns a duration value such as "5s".
func (c *Config) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// GetStringSlice returns a comma separated value as a trimmed list.
// Empty items are dropped.
func (c *Config) GetStringSlice(key string) []string {
	return SplitList(c.v.GetString(key))
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetPluginConfig retrieves plugin-specific configuration by plugin name.
func (c *Config) GetPluginConfig(name string) (PluginConfig, bool) {
	cfg, ok := c.plugins[name]
	return cfg, ok
}

// PluginNames returns the configured plugin names.
func (c *Config) PluginNames() []string {
	if len(c.plugins) == 0 {
		return nil
	}
	nameList := make([]string, 0, len(c.plugins))
	for name := range c.plugins {
		nameList = append(nameList, name)
	}
	sort.Strings(nameList)
	return nameList
}

// GetPluginString returns a string value from plugin configuration.
// Returns empty string if plugin or key not found.
func (c *Config) GetPluginString(plugin, key string) string {
	val, ok := c.pluginValue(plugin, key)
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", val)
}

// GetPluginBool returns a bool value from plugin configuration, or false.
func (c *Config) GetPluginBool(plugin, key string) bool {
	val, ok := c.pluginValue(plugin, key)
	if !ok {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}

func (c *Config) pluginValue(plugin, key string) (interface{}, bool) {
	cfg, ok := c.plugins[plugin]
	if !ok {
		return nil, false
	}
	val, ok := cfg[key]
	return val, ok
}

// loadINI layers root keys as defaults so the environment still overrides them.
func loadINI(v *viper.Viper, path string) (*ini.File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	for _, key := range cfg.Section("").Keys() {
		v.SetDefault(key.Name(), key.Value())
	}

	return cfg, nil
}

func loadPlugins(cfg *ini.File, c *Config) {
	const pluginPrefix = "plugins."

	for _, section := range cfg.Sections() {
		sectionName := section.Name()
		if !strings.HasPrefix(sectionName, pluginPrefix) {
			continue
		}

		pluginName := strings.TrimPrefix(sectionName, pluginPrefix)
		pluginCfg := make(PluginConfig)
		for _, key := range section.Keys() {
			pluginCfg[key.Name()] = key.Value()
		}
		c.plugins[pluginName] = pluginCfg
	}
}

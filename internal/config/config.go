package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"octoprint-cli/internal/apperr"
)

const (
	EnvPrefix     = "OCTOPRINT_CLI"
	EnvConfigPath = "OCTOPRINT_CLI_CONFIG"

	DefaultTimeoutSeconds       = 10
	DefaultUploadTimeoutSeconds = 30
	DefaultTelegramAPIURL       = "https://api.telegram.org"
	DefaultMQTTTopic            = "octoprint-cli"
)

type MQTTSettings struct {
	Broker   string `mapstructure:"broker" json:"broker,omitempty"`
	Topic    string `mapstructure:"topic" json:"topic,omitempty"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	ClientID string `mapstructure:"client_id" json:"client_id,omitempty"`
}

type FTPSettings struct {
	Addr     string `mapstructure:"addr" json:"addr,omitempty"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	Dir      string `mapstructure:"dir" json:"dir,omitempty"`
}

type Config struct {
	OctoPrintURL         string       `mapstructure:"octoprint_url" json:"octoprint_url" validate:"required"`
	APIKey               string       `mapstructure:"api_key" json:"api_key" validate:"required"`
	WebcamURL            string       `mapstructure:"webcam_url" json:"webcam_url,omitempty"`
	TelegramBotToken     string       `mapstructure:"telegram_bot_token" json:"telegram_bot_token,omitempty"`
	TelegramChatID       string       `mapstructure:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	TelegramAPIURL       string       `mapstructure:"telegram_api_url" json:"telegram_api_url,omitempty"`
	TimeoutSeconds       int          `mapstructure:"timeout_seconds" json:"timeout_seconds,omitempty"`
	UploadTimeoutSeconds int          `mapstructure:"upload_timeout_seconds" json:"upload_timeout_seconds,omitempty"`
	LogLevel             string       `mapstructure:"log_level" json:"log_level,omitempty"`
	MetricsFile          string       `mapstructure:"metrics_file" json:"metrics_file,omitempty"`
	MQTT                 MQTTSettings `mapstructure:"mqtt" json:"mqtt,omitempty"`
	FTPArchive           FTPSettings  `mapstructure:"ftp_archive" json:"ftp_archive,omitempty"`

	// Files that were actually read, user file first.
	Sources []string `mapstructure:"-" json:"-"`
}

// keys lists every recognized option so environment overrides are visible to Unmarshal.
var keys = []string{
	"octoprint_url", "api_key", "webcam_url",
	"telegram_bot_token", "telegram_chat_id", "telegram_api_url",
	"timeout_seconds", "upload_timeout_seconds", "log_level", "metrics_file",
	"mqtt.broker", "mqtt.topic", "mqtt.username", "mqtt.password", "mqtt.client_id",
	"ftp_archive.addr", "ftp_archive.username", "ftp_archive.password", "ftp_archive.dir",
}

type LoadOptions struct {
	// Path set with --config; a missing file here is an error.
	ExplicitPath string
	// Directory searched for the project file, usually the working directory.
	ProjectDir string
}

func Load(opts LoadOptions) (Config, error) {
	userPath := opts.ExplicitPath
	explicit := userPath != ""
	if userPath == "" {
		userPath = os.Getenv(EnvConfigPath)
		explicit = userPath != ""
	}
	if userPath == "" {
		p, err := UserConfigPath()
		if err != nil {
			return Config{}, &apperr.ConfigError{Err: err}
		}
		userPath = p
	}

	v := newViper()
	var sources []string

	read, err := readInto(v, userPath)
	if err != nil {
		return Config{}, err
	}
	if !read && explicit {
		return Config{}, &apperr.ConfigError{Path: userPath, Err: os.ErrNotExist}
	}
	if read {
		sources = append(sources, userPath)
	}

	if opts.ProjectDir != "" {
		projectPath := ProjectConfigPath(opts.ProjectDir)
		pv := viper.New()
		ok, err := readInto(pv, projectPath)
		if err != nil {
			return Config{}, err
		}
		if ok {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return Config{}, &apperr.ConfigError{Path: projectPath, Err: err}
			}
			sources = append(sources, projectPath)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &apperr.ConfigError{Path: userPath, Err: err}
	}
	cfg.Sources = sources
	cfg.applyDefaults()

	if missing := cfg.missingRequired(); len(missing) > 0 {
		cerr := &apperr.ConfigError{Path: userPath, Missing: missing}
		if len(sources) == 0 {
			cerr.Err = errors.New("no config file found")
		}
		return Config{}, cerr
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return v
}

// readInto loads path into v. A missing file is not an error; the bool reports
// whether anything was read.
func readInto(v *viper.Viper, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &apperr.ConfigError{Path: path, Err: err}
	}
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return false, &apperr.ConfigError{Path: path, Err: err}
	}
	return true, nil
}

func (c *Config) applyDefaults() {
	c.OctoPrintURL = strings.TrimRight(strings.TrimSpace(c.OctoPrintURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.UploadTimeoutSeconds <= 0 {
		c.UploadTimeoutSeconds = DefaultUploadTimeoutSeconds
	}
	if c.TelegramAPIURL == "" {
		c.TelegramAPIURL = DefaultTelegramAPIURL
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = DefaultMQTTTopic
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	vd := validator.New(validator.WithRequiredStructEnabled())
	vd.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return vd
}

func (c Config) missingRequired() []string {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return missing
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}

type TelegramSettings struct {
	APIURL   string
	BotToken string
	ChatID   string
}

// Telegram returns the bot settings or a ConfigError naming every absent key.
func (c Config) Telegram() (TelegramSettings, error) {
	var missing []string
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		missing = append(missing, "telegram_bot_token")
	}
	if strings.TrimSpace(c.TelegramChatID) == "" {
		missing = append(missing, "telegram_chat_id")
	}
	if len(missing) > 0 {
		return TelegramSettings{}, &apperr.ConfigError{Missing: missing, Err: errors.New("telegram is not configured")}
	}
	return TelegramSettings{
		APIURL:   c.TelegramAPIURL,
		BotToken: strings.TrimSpace(c.TelegramBotToken),
		ChatID:   strings.TrimSpace(c.TelegramChatID),
	}, nil
}

func (c Config) Webcam() (string, error) {
	if strings.TrimSpace(c.WebcamURL) == "" {
		return "", &apperr.ConfigError{Missing: []string{"webcam_url"}, Err: errors.New("webcam is not configured")}
	}
	return strings.TrimSpace(c.WebcamURL), nil
}

func (c Config) MQTTEnabled() bool {
	return strings.TrimSpace(c.MQTT.Broker) != ""
}

func (c Config) FTPArchiveEnabled() bool {
	return strings.TrimSpace(c.FTPArchive.Addr) != ""
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	out.APIKey = mask(c.APIKey)
	out.TelegramBotToken = mask(c.TelegramBotToken)
	out.MQTT.Password = maskAll(c.MQTT.Password)
	out.FTPArchive.Password = maskAll(c.FTPArchive.Password)
	return out
}

// mask keeps a short prefix so keys and tokens can still be told apart.
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return fmt.Sprintf("%s****", s[:4])
}

func maskAll(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

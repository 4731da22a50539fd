// Package config loads settings from an optional YAML file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable the tool reads,
// e.g. FAILEDREVIEWS_REPORT_DAYS sets report.days.
const EnvPrefix = "FAILEDREVIEWS_"

type Config struct {
	Collection Collection `koanf:"collection"`
	Report     Report     `koanf:"report"`
	Server     Server     `koanf:"server"`
	Log        Log        `koanf:"log"`
}

type Collection struct {
	Path   string `koanf:"path" validate:"required"`
	GitURL string `koanf:"git_url"`
	GitDir string `koanf:"git_dir" validate:"required_with=GitURL"`
	Init   bool   `koanf:"init"`
}

type Report struct {
	Days   int    `koanf:"days" validate:"min=1,max=65536"`
	Pass   string `koanf:"pass" validate:"oneof=good good_or_better"`
	Format string `koanf:"format" validate:"oneof=text json csv html"`
}

type Server struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr" validate:"required_if=Enabled true"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"collection": "collection.path",
	"git-url":    "collection.git_url",
	"git-dir":    "collection.git_dir",
	"init":       "collection.init",
	"days":       "report.days",
	"pass":       "report.pass",
	"format":     "report.format",
	"serve":      "server.enabled",
	"addr":       "server.addr",
	"cache-ttl":  "server.cache_ttl",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// NewFlagSet declares every flag with its default value.
func NewFlagSet(name string) *pflag.FlagSet {
	f := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f.StringP("config", "c", "", "Path to a YAML configuration file")
	f.String("collection", "collection.anki2", "Path to the collection file (relative to the checkout when --git-url is set)")
	f.String("git-url", "", "Git repository holding the collection file")
	f.String("git-dir", "repos", "Directory for git checkouts")
	f.Bool("init", false, "Create the collection schema if the file is new")
	f.IntP("days", "d", 30, "Days of interval, counted back from the last review rather than today")
	f.String("pass", "good", "Answers that count as a pass: good or good_or_better")
	f.StringP("format", "f", "text", "Output format: text, json, csv or html")
	f.Bool("serve", false, "Serve the report over HTTP instead of printing it")
	f.String("addr", ":8080", "Listen address for --serve")
	f.Duration("cache-ttl", 5*time.Minute, "How long the server reuses a computed report")
	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.String("log-format", "text", "Log format: text or json")
	return f
}

// Load parses args and merges all configuration sources.
func Load(args []string) (*Config, error) {
	f := NewFlagSet("failedreviews")
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	flags := posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[fl.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(f, fl)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns FAILEDREVIEWS_COLLECTION_GIT_URL into collection.git_url.
// Only the first underscore separates the section from the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", keyFor(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// keyFor turns a validator namespace like Config.Report.Days into report.days.
func keyFor(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

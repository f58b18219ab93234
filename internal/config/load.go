package config

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const envPrefix = "UNDINE"

// Load builds the configuration: defaults, then the config file, then
// UNDINE_* environment variables, then flags. Secrets referenced through
// *_file keys and the interactive password prompt resolve last.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := Defaults()
	var defaultMap map[string]any
	if err := mapstructure.Decode(defaults, &defaultMap); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	for key, val := range flattenMap("", defaultMap) {
		v.SetDefault(key, val)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := configFilePath(flags); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("undine")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/undine")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configFilePath(flags *pflag.FlagSet) string {
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			return f.Value.String()
		}
	}
	return os.Getenv(envPrefix + "_CONFIG")
}

// resolveSecrets reads *_file references and, as a last resort, prompts
// for the database password on the terminal.
func resolveSecrets(cfg *Config) error {
	if cfg.Database.DSNFile != "" {
		dsn, err := readSecretFile(cfg.Database.DSNFile)
		if err != nil {
			return fmt.Errorf("read database.dsn_file: %w", err)
		}
		cfg.Database.DSN = dsn
	}
	if cfg.Database.Password == "" && cfg.Database.PasswordFile != "" {
		pw, err := readSecretFile(cfg.Database.PasswordFile)
		if err != nil {
			return fmt.Errorf("read database.password_file: %w", err)
		}
		cfg.Database.Password = pw
	}
	if cfg.Database.DSN == "" && cfg.Database.Password == "" && cfg.Database.PasswordPrompt {
		if !term.IsTerminal(int(syscall.Stdin)) {
			return fmt.Errorf("database.password_prompt set but stdin is not a terminal")
		}
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.Database.User, cfg.Database.Host)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cfg.Database.Password = string(raw)
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// DSN renders the effective driver DSN from the discrete fields unless
// an explicit DSN was supplied.
func (d *DatabaseConfig) DriverDSN() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	mc.User = d.User
	mc.Passwd = d.Password
	mc.DBName = d.Database
	mc.ParseTime = true
	if d.TLS {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN(), nil
}

// flattenMap turns nested maps into dotted viper keys.
func flattenMap(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for key, val := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for k, v := range flattenMap(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = val
	}
	return out
}

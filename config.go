// Package patchwork holds the configuration shared by the patchwork
// commands.
package patchwork

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gwd/patchwork/imapsource"
	"github.com/gwd/patchwork/ingest"
)

type Config struct {
	Database      string
	ListIDHeaders []string
	IMAP          imapsource.MailboxInfo
}

// AddFlags registers the flags every command understands.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (default .patchwork.{yaml,toml,json} in . or $HOME)")
	fs.String("database", "", "Patch database file")
}

// LoadConfig reads the config file, then applies PATCHWORK_* environment
// variables (PATCHWORK_IMAP_SERVER for imap.server) and finally any
// flags set in fs, which may be nil.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("database", "patchwork.sqlite")
	v.SetDefault("listid_headers", ingest.DefaultListIDHeaders)
	v.SetDefault("imap.mailbox", "INBOX")

	v.SetEnvPrefix("patchwork")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("Binding flags: %w", err)
		}
		configFile, _ = fs.GetString("config")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".patchwork")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Reading config file: %w", err)
		}
	}

	cfg := &Config{
		Database:      v.GetString("database"),
		ListIDHeaders: v.GetStringSlice("listid_headers"),
		IMAP: imapsource.MailboxInfo{
			Hostname:    v.GetString("imap.server"),
			Port:        v.GetInt("imap.port"),
			Username:    v.GetString("imap.username"),
			Password:    v.GetString("imap.password"),
			MailboxName: v.GetString("imap.mailbox"),
		},
	}

	if cfg.Database == "" {
		return nil, fmt.Errorf("No database configured")
	}

	return cfg, nil
}

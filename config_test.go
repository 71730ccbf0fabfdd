package patchwork

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

const testConfig = `database: from-file.sqlite
listid_headers:
  - X-Mailing-List
imap:
  server: imap.example.com
  port: 1993
  username: alice
  password: secret
`

func writeConfig(t *testing.T) string {
	t.Helper()

	fname := filepath.Join(t.TempDir(), "patchwork.yaml")
	if err := os.WriteFile(fname, []byte(testConfig), 0600); err != nil {
		t.Fatalf("Writing config: %v", err)
	}
	return fname
}

func TestLoadConfig(t *testing.T) {
	fname := writeConfig(t)
	t.Setenv("PATCHWORK_IMAP_USERNAME", "bob")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--config", fname, "--database", "from-flag.sqlite"}); err != nil {
		t.Fatalf("Parsing flags: %v", err)
	}

	cfg, err := LoadConfig(fs)
	if err != nil {
		t.Fatalf("ERROR: loading config: %v", err)
	}

	if cfg.Database != "from-flag.sqlite" {
		t.Errorf("ERROR: flag did not override database: %q", cfg.Database)
	}
	if strings.Join(cfg.ListIDHeaders, ",") != "X-Mailing-List" {
		t.Errorf("ERROR: unexpected list id headers %v", cfg.ListIDHeaders)
	}
	if cfg.IMAP.Hostname != "imap.example.com" || cfg.IMAP.Port != 1993 || cfg.IMAP.Password != "secret" {
		t.Errorf("ERROR: unexpected imap config %+v", cfg.IMAP)
	}
	if cfg.IMAP.Username != "bob" {
		t.Errorf("ERROR: environment did not override username: %q", cfg.IMAP.Username)
	}
	if cfg.IMAP.MailboxName != "INBOX" {
		t.Errorf("ERROR: mailbox default not applied: %q", cfg.IMAP.MailboxName)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--config", writeConfig(t)}); err != nil {
		t.Fatalf("Parsing flags: %v", err)
	}

	cfg, err := LoadConfig(fs)
	if err != nil {
		t.Fatalf("ERROR: loading config: %v", err)
	}
	if cfg.Database != "from-file.sqlite" {
		t.Errorf("ERROR: unset flag overrode config file: %q", cfg.Database)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}); err != nil {
		t.Fatalf("Parsing flags: %v", err)
	}

	if _, err := LoadConfig(fs); err == nil {
		t.Errorf("ERROR: missing explicit config file not reported")
	}
}

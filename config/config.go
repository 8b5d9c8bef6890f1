package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maildrift/mailedit/editor"
	"github.com/maildrift/mailedit/store"
)

// Config captures everything one run of the editing pipeline needs.
type Config struct {
	MailboxPath string
	Format      store.Format
	View        bool

	// Message is an explicit 1-based message number; 0 means the run
	// works on the tagged selection instead.
	Message     int
	Tags        []int
	MatchHeader []string
	MatchBody   []string

	Editor           string
	UntagAfterDelete bool

	TempDir  string
	StateDir string
	NoSync   bool
	LogLevel string
	LogDir   string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := DefaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("mailbox", "", "Path to the mailbox to edit")
	flags.String("format", "mbox", "Mailbox format: mbox or maildir")
	flags.Bool("view", false, "View only: run the editor but discard all changes")
	flags.Int("message", 0, "Edit a single message by its 1-based number")
	flags.IntSlice("tag", nil, "Tag a message by its 1-based number (repeatable)")
	flags.StringArray("match-header", nil, "Tag every message whose headers match the regex (repeatable)")
	flags.StringArray("match-body", nil, "Tag every message whose body matches the regex (repeatable)")
	flags.String("editor", "", "Editor command line (falls back to config file, $VISUAL, $EDITOR, vi)")
	flags.Bool("untag-after-delete", false, "Clear the tag of a message once its edited replacement is committed")
	flags.String("temp-dir", "", "Directory for staging files (defaults to the system temp directory)")
	flags.String("state-dir", defaultStateDir, "Directory for the recovery journal")
	flags.Bool("no-sync", false, "Skip mailbox compaction after the run")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
	flags.String("config", "", "Config file (defaults to ~/.config/mailedit/config.yaml)")

	if err := cmd.MarkFlagRequired("mailbox"); err != nil {
		return err
	}

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct, layering
// the config file and MAILEDIT_* environment values under the preference
// flags, with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	configFile, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	v, err := newViper(configFile)
	if err != nil {
		return Config{}, err
	}

	mailboxPath, err := flags.GetString("mailbox")
	if err != nil {
		return Config{}, err
	}
	formatName, err := flags.GetString("format")
	if err != nil {
		return Config{}, err
	}
	view, err := flags.GetBool("view")
	if err != nil {
		return Config{}, err
	}
	message, err := flags.GetInt("message")
	if err != nil {
		return Config{}, err
	}
	tags, err := flags.GetIntSlice("tag")
	if err != nil {
		return Config{}, err
	}
	matchHeader, err := flags.GetStringArray("match-header")
	if err != nil {
		return Config{}, err
	}
	matchBody, err := flags.GetStringArray("match-body")
	if err != nil {
		return Config{}, err
	}
	editorCmd, err := flags.GetString("editor")
	if err != nil {
		return Config{}, err
	}
	untag, err := flags.GetBool("untag-after-delete")
	if err != nil {
		return Config{}, err
	}
	tempDir, err := flags.GetString("temp-dir")
	if err != nil {
		return Config{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return Config{}, err
	}
	noSync, err := flags.GetBool("no-sync")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	// An unchanged preference flag yields to the config file and environment.
	if !flags.Changed("editor") && v.GetString("editor") != "" {
		editorCmd = v.GetString("editor")
	}
	if !flags.Changed("untag-after-delete") && v.IsSet("untag_after_delete") {
		untag = v.GetBool("untag_after_delete")
	}
	if !flags.Changed("log-level") && v.GetString("log_level") != "" {
		logLevel = v.GetString("log_level")
	}
	if !flags.Changed("state-dir") && v.GetString("state_dir") != "" {
		stateDir = v.GetString("state_dir")
	}
	if !flags.Changed("temp-dir") && v.GetString("temp_dir") != "" {
		tempDir = v.GetString("temp_dir")
	}

	format, err := store.ParseFormat(formatName)
	if err != nil {
		return Config{}, err
	}

	if stateDir == "" {
		stateDir, err = DefaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		MailboxPath:      mailboxPath,
		Format:           format,
		View:             view,
		Message:          message,
		Tags:             tags,
		MatchHeader:      matchHeader,
		MatchBody:        matchBody,
		Editor:           editor.Resolve(editorCmd),
		UntagAfterDelete: untag,
		TempDir:          tempDir,
		StateDir:         filepath.Clean(stateDir),
		NoSync:           noSync,
		LogLevel:         logLevel,
		LogDir:           logDir,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILEDIT")
	v.AutomaticEnv()

	if configFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configFile = filepath.Join(home, ".config", "mailedit", "config.yaml")
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			// a missing default config file is fine, a broken one is not
			if _, statErr := os.Stat(configFile); statErr == nil {
				return nil, fmt.Errorf("read config %s: %w", configFile, err)
			}
		}
	}

	return v, nil
}

func validateConfig(cfg Config) error {
	if cfg.MailboxPath == "" {
		return fmt.Errorf("--mailbox is required")
	}
	if cfg.Message < 0 {
		return fmt.Errorf("--message must be a positive message number")
	}
	selectionActive := len(cfg.Tags) > 0 || len(cfg.MatchHeader) > 0 || len(cfg.MatchBody) > 0
	if cfg.Message > 0 && selectionActive {
		return fmt.Errorf("--message and the tag selection flags are mutually exclusive")
	}
	if cfg.Message == 0 && !selectionActive {
		return fmt.Errorf("select messages with --message, --tag, --match-header or --match-body")
	}
	for _, n := range cfg.Tags {
		if n < 1 {
			return fmt.Errorf("--tag values are 1-based message numbers")
		}
	}
	if cfg.Editor == "" {
		return fmt.Errorf("no editor configured")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// DefaultStateDir is where the recovery journal lives unless overridden.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mailedit", "state"), nil
}

package main

import (
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
)

var (
	cfgProfile     string
	cfgDataDir     string
	cfgMetadata    string
	cfgSyncDir     string
	cfgMetadataDSN string
	cfgBlobs       string
	cfgBlobPath    string
	cfgDebug       bool
	cfgLogPath     string
	outputJSON     bool

	// Set by serve.
	cfgListen         string
	cfgAllowedOrigins []string
)

var rootCmd = &cobra.Command{
	Use:   "setaside",
	Short: "Setaside - park browser tabs for later",
	Long: `Setaside keeps groups of browser tabs aside until you want them back.

Collections live in a small synced store shared between your devices, while
favicons and thumbnails stay in a local attachment database. Run 'setaside serve'
to let browser extensions connect, or manage collections from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if isTTY() {
			fmt.Fprintln(cmd.OutOrStdout(), renderBannerWithTagline())
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgProfile, "profile", "p", "", "Profile to operate on (default: $SETASIDE_PROFILE or \"default\")")
	flags.StringVar(&cfgDataDir, "data-dir", "", "Root directory for profile data (default: ~/.setaside)")
	flags.StringVar(&cfgMetadata, "metadata", "", "Metadata store backend: file, postgres, memory (default: file)")
	flags.StringVar(&cfgSyncDir, "sync-dir", "", "Directory holding the synced metadata file")
	flags.StringVar(&cfgMetadataDSN, "metadata-dsn", "", "PostgreSQL connection string for the postgres backend")
	flags.StringVar(&cfgBlobs, "blobs", "", "Attachment store backend: sqlite, bolt, memory (default: sqlite)")
	flags.StringVar(&cfgBlobPath, "blob-path", "", "Attachment database path")
	flags.BoolVar(&cfgDebug, "debug", false, "Enable debug logging")
	flags.StringVar(&cfgLogPath, "log", "", "Write logs to this file instead of stderr")
	flags.BoolVar(&outputJSON, "json", false, "Output as JSON")
}

// loadConfig layers flags over environment variables over defaults.
func loadConfig() (setaside.Config, error) {
	cfg := setaside.ConfigFromEnv().Merge(setaside.Config{
		Profile:        cfgProfile,
		DataDir:        cfgDataDir,
		Metadata:       cfgMetadata,
		SyncDir:        cfgSyncDir,
		MetadataDSN:    cfgMetadataDSN,
		Blobs:          cfgBlobs,
		BlobPath:       cfgBlobPath,
		Debug:          cfgDebug,
		LogPath:        cfgLogPath,
		Listen:         cfgListen,
		AllowedOrigins: cfgAllowedOrigins,
	}).WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openClient opens and hydrates a client for one command. The returned function
// closes it along with the log file.
func openClient(cmd *cobra.Command, opts setaside.ClientOptions) (*setaside.Client, func(), error) {
	return openClientWith(cmd, func(log.Logger) setaside.ClientOptions { return opts })
}

// openClientWith is openClient for collaborators that need the command's logger.
func openClientWith(cmd *cobra.Command, build func(log.Logger) setaside.ClientOptions) (*setaside.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, logCloser, err := setaside.OpenLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	opts := build(logger)
	opts.Logger = logger

	client, err := setaside.New(cfg, opts)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, fmt.Errorf("initialize client: %w", err)
	}
	closeAll := func() {
		_ = client.Close()
		_ = logCloser.Close()
	}
	if err := client.Start(cmd.Context()); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("load collections: %w", err)
	}
	return client, closeAll, nil
}

// closeQuietly closes c, ignoring the error.
func closeQuietly(c io.Closer) {
	_ = c.Close()
}

package setaside

import (
	"os"
	"strings"

	"github.com/hyperengineering/setaside/internal/profile"
)

// Metadata store backends.
const (
	MetadataFile     = "file"
	MetadataPostgres = "postgres"
	MetadataMemory   = "memory"
)

// Blob store backends.
const (
	BlobsSQLite = "sqlite"
	BlobsBolt   = "bolt"
	BlobsMemory = "memory"
)

// Area is the metadata store area holding collections.
const Area = "sync"

// Config configures a setaside Client.
type Config struct {
	// Profile selects the set of stores to operate on.
	// If empty, resolved as SETASIDE_PROFILE env > "default".
	Profile string

	// DataDir is the root holding every profile's files.
	// Defaults to ~/.setaside.
	DataDir string

	// Metadata selects the metadata store backend: "file", "postgres" or "memory".
	// Defaults to "file".
	Metadata string

	// SyncDir is where the file backend keeps its area file. Point it at a folder
	// shared between devices to sync collections.
	// Defaults to the profile's sync directory.
	SyncDir string

	// MetadataDSN is the PostgreSQL connection string for the postgres backend.
	MetadataDSN string

	// Blobs selects the attachment store backend: "sqlite", "bolt" or "memory".
	// Defaults to "sqlite".
	Blobs string

	// BlobPath overrides the attachment database location.
	BlobPath string

	// Listen is the address served by `setaside serve`.
	// Defaults to 127.0.0.1:7878.
	Listen string

	// JWTSecret, when set, requires subscriber connections to carry an HS256
	// bearer token signed with it.
	JWTSecret string

	// AllowedOrigins lists the origins permitted to connect from a browser.
	AllowedOrigins []string

	// Debug enables debug-level logging.
	Debug bool

	// LogPath is the path to write logs to.
	// Defaults to stderr if empty.
	LogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Profile:  profile.Default,
		DataDir:  profile.DefaultRoot(),
		Metadata: MetadataFile,
		Blobs:    BlobsSQLite,
		Listen:   "127.0.0.1:7878",
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	SETASIDE_PROFILE          → Profile
//	SETASIDE_DATA_DIR         → DataDir
//	SETASIDE_METADATA         → Metadata
//	SETASIDE_SYNC_DIR         → SyncDir
//	SETASIDE_METADATA_DSN     → MetadataDSN
//	SETASIDE_BLOBS            → Blobs
//	SETASIDE_BLOB_PATH        → BlobPath
//	SETASIDE_LISTEN           → Listen
//	SETASIDE_JWT_SECRET       → JWTSecret
//	SETASIDE_ALLOWED_ORIGINS  → AllowedOrigins (comma separated)
//	SETASIDE_DEBUG            → Debug (any non-empty value enables)
//	SETASIDE_LOG              → LogPath
func ConfigFromEnv() Config {
	return Config{
		Profile:        os.Getenv(profile.EnvProfile),
		DataDir:        os.Getenv("SETASIDE_DATA_DIR"),
		Metadata:       os.Getenv("SETASIDE_METADATA"),
		SyncDir:        os.Getenv("SETASIDE_SYNC_DIR"),
		MetadataDSN:    os.Getenv("SETASIDE_METADATA_DSN"),
		Blobs:          os.Getenv("SETASIDE_BLOBS"),
		BlobPath:       os.Getenv("SETASIDE_BLOB_PATH"),
		Listen:         os.Getenv("SETASIDE_LISTEN"),
		JWTSecret:      os.Getenv("SETASIDE_JWT_SECRET"),
		AllowedOrigins: splitList(os.Getenv("SETASIDE_ALLOWED_ORIGINS")),
		Debug:          os.Getenv("SETASIDE_DEBUG") != "",
		LogPath:        os.Getenv("SETASIDE_LOG"),
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if err := profile.Validate(c.Profile); err != nil {
		return &ValidationError{Field: "Profile", Message: err.Error()}
	}
	if c.DataDir == "" {
		return &ValidationError{Field: "DataDir", Message: "required: root directory for profile data"}
	}

	switch c.Metadata {
	case MetadataFile, MetadataMemory:
	case MetadataPostgres:
		if c.MetadataDSN == "" {
			return &ValidationError{Field: "MetadataDSN", Message: "required when Metadata is postgres"}
		}
	default:
		return &ValidationError{Field: "Metadata", Message: "must be one of file, postgres, memory"}
	}

	switch c.Blobs {
	case BlobsSQLite, BlobsBolt, BlobsMemory:
	default:
		return &ValidationError{Field: "Blobs", Message: "must be one of sqlite, bolt, memory"}
	}

	if c.Listen == "" {
		return &ValidationError{Field: "Listen", Message: "required: address to serve on"}
	}
	return nil
}

// Layout returns the on-disk layout of the configured profile.
func (c *Config) Layout() profile.Layout {
	return profile.Layout{Root: c.DataDir, ID: c.Profile}
}

// WithDefaults fills in default values for unset fields.
// Profile resolution: explicit Profile field > SETASIDE_PROFILE env > "default".
// An invalid SETASIDE_PROFILE is left for Validate to report.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Profile == "" {
		resolved, err := profile.Resolve("")
		if err != nil {
			c.Profile = os.Getenv(profile.EnvProfile)
		} else {
			c.Profile = resolved
		}
	}
	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
	if c.Metadata == "" {
		c.Metadata = defaults.Metadata
	}
	if c.Blobs == "" {
		c.Blobs = defaults.Blobs
	}
	if c.Listen == "" {
		c.Listen = defaults.Listen
	}

	layout := c.Layout()
	if c.SyncDir == "" {
		c.SyncDir = layout.SyncDir()
	}
	if c.BlobPath == "" {
		c.BlobPath = layout.BlobPath(c.Blobs)
	}
	return c
}

// Merge overlays the non-zero fields of o onto c.
func (c Config) Merge(o Config) Config {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Profile, o.Profile)
	set(&c.DataDir, o.DataDir)
	set(&c.Metadata, o.Metadata)
	set(&c.SyncDir, o.SyncDir)
	set(&c.MetadataDSN, o.MetadataDSN)
	set(&c.Blobs, o.Blobs)
	set(&c.BlobPath, o.BlobPath)
	set(&c.Listen, o.Listen)
	set(&c.JWTSecret, o.JWTSecret)
	set(&c.LogPath, o.LogPath)
	if len(o.AllowedOrigins) > 0 {
		c.AllowedOrigins = o.AllowedOrigins
	}
	c.Debug = c.Debug || o.Debug
	return c
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

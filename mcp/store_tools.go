package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// handleStatus handles the setaside_status tool call.
func (s *Server) handleStatus(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	cfg := s.client.Config()
	health := s.client.HealthCheck(ctx)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Profile: %s\n", cfg.Profile)
	fmt.Fprintf(&sb, "Metadata: %s", cfg.Metadata)
	switch cfg.Metadata {
	case "file":
		fmt.Fprintf(&sb, " (%s)", cfg.SyncDir)
	case "postgres":
		sb.WriteString(" (dsn configured)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Attachments: %s", cfg.Blobs)
	if cfg.BlobPath != "" && cfg.Blobs != "memory" {
		fmt.Fprintf(&sb, " (%s)", cfg.BlobPath)
	}
	sb.WriteString("\n\n")

	sb.WriteString("Health:\n")
	fmt.Fprintf(&sb, "  Ready: %s\n", yesNo(health.Ready))
	fmt.Fprintf(&sb, "  Metadata store: %s\n", okFailed(health.MetadataOK))
	fmt.Fprintf(&sb, "  Attachment store: %s\n", okFailed(health.BlobsOK))
	fmt.Fprintf(&sb, "  Collections: %d\n", health.Collections)
	fmt.Fprintf(&sb, "  Subscribers: %d\n", health.Subscribers)
	if health.Error != "" {
		fmt.Fprintf(&sb, "  Error: %s\n", health.Error)
	}

	return &ToolResult{Content: sb.String(), IsError: !health.Healthy}, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func okFailed(b bool) string {
	if b {
		return "ok"
	}
	return "FAILED"
}

// formatRelativeTime formats a timestamp as relative time (e.g., "2h ago").
func formatRelativeTime(t time.Time) string {
	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	}
}

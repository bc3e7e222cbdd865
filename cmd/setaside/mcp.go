package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
	"github.com/hyperengineering/setaside/internal/opener"
	setasidemcp "github.com/hyperengineering/setaside/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio, exposing collections
as tools (setaside_list, setaside_create, setaside_restore_collection, ...).

Example client configuration:

  {
    "mcpServers": {
      "setaside": {
        "command": "setaside",
        "args": ["mcp"],
        "env": {
          "SETASIDE_PROFILE": "default"
        }
      }
    }
  }

Logs go to stderr, or to --log when set.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	client, closeClient, err := openClient(cmd, setaside.ClientOptions{Opener: opener.NewCommand()})
	if err != nil {
		return err
	}
	defer closeClient()

	return setasidemcp.NewServer(client).Run()
}

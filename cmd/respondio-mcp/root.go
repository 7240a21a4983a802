package main

import (
	"github.com/spf13/cobra"
)

type serveFlags struct {
	mode  string
	port  int
	debug bool
}

func newRootCmd() *cobra.Command {
	flags := &serveFlags{}
	root := &cobra.Command{
		Use:   "respondio-mcp",
		Short: "Respond.io MCP server",
		Long: `respondio-mcp exposes the Respond.io API as Model Context Protocol tools.

In http mode it serves the streamable HTTP transport on /mcp, authenticating
each request with a Respond.io bearer token. In stdio mode it serves a single
session on standard input and output using RESPONDIO_API_KEY.

Configuration is read from the environment (PORT, MCP_SERVER_MODE,
RESPONDIO_BASE_URL, RESPONDIO_API_KEY, DEBUG, ...). Flags override it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	bindServeFlags(root, flags)

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func bindServeFlags(cmd *cobra.Command, flags *serveFlags) {
	cmd.Flags().StringVar(&flags.mode, "mode", "", "transport: http or stdio (env MCP_SERVER_MODE)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "HTTP listen port (env PORT)")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "enable debug logging (env DEBUG)")
}

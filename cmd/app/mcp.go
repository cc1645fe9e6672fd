package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/starford/gistblog/internal/mcpserver"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the blog tools over MCP on stdin/stdout",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, backend, err := setup(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			srv := mcpserver.New(backend.Service(""), version,
				mcpserver.WithPageSize(cfg.Blog.PageSize),
				mcpserver.WithNeighbors(cfg.Blog.NeighborMode()),
			)
			return srv.ServeStdio()
		},
	}
}

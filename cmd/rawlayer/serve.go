package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TFMV/rawlayer/api"
)

var serveFlags = map[string]string{
	"server.port": "port",
	"output.dir":  "data-dir",
}

func newServeCommand(a *app) *cobra.Command {
	var prefork bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rawlayer API server",
		Long: `Serve presets, declared schemas, the manifest of the latest run in the data
directory and an on-demand audit of it over HTTP until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, serveFlags, nil); err != nil {
				return err
			}
			server := api.NewServer(api.ServerOptions{
				Port:    strconv.Itoa(a.cfg.Server.Port),
				Prefork: prefork,
				DataDir: a.cfg.Output.Dir,
				Logger:  a.log,
			})
			return server.Start(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 8080, "Port to listen on")
	cmd.Flags().String("data-dir", "data", "Output directory of the run to serve")
	cmd.Flags().BoolVar(&prefork, "prefork", false, "Enable Fiber prefork")
	return cmd
}

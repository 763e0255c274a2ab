package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thebtf/orthomate/internal/config"
	"github.com/thebtf/orthomate/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a dashboard worker is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(config.DefaultWorkerHost, config.GetWorkerPort())
		h, err := c.Health(cmd.Context())
		if err != nil {
			if h != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "worker %s (version %s)\n", h.Status, h.Version)
				return nil
			}
			return fmt.Errorf("worker not running on port %d: %w", config.GetWorkerPort(), err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "worker %s (version %s, up %s)\n", h.Status, h.Version, h.Uptime)
		if st := h.Store; st != nil {
			if st.OK {
				fmt.Fprintf(out, "store %s reachable\n", st.Backend)
			} else {
				fmt.Fprintf(out, "store %s unreachable: %s\n", st.Backend, st.Error)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

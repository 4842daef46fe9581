package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"helios-hq/relay/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file without starting the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		fmt.Printf("configuration OK: %d provider(s), %d routing rule(s)\n",
			len(cfg.Providers), len(cfg.Routing.Rules))

		if verbose {
			for _, p := range cfg.Providers {
				fmt.Printf("  provider %-16s kind=%-18s models=%d enabled=%v\n",
					p.Name, p.Kind, len(p.Models), p.Enabled == nil || *p.Enabled)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

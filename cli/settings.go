package cli

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"yaami/config"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the settings file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := toml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting and save the settings file",
		Long: `Change one setting and save the settings file.

Keys: download_dir, connections, history, log.level, log.format, log.output.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// flag overrides must not leak into the file
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Saved %s = %s in %s\n", args[0], args[1], a.configPath)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show installation metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.store.Metadata()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Version:       %s\n", m.Version)
			fmt.Fprintf(a.stdout, "First install: %s\n", m.FirstInstall.Local().Format(timeLayout))
			fmt.Fprintf(a.stdout, "Last opened:   %s\n", m.LastOpened.Local().Format(timeLayout))
			fmt.Fprintf(a.stdout, "Connections:   %d (%s)\n", m.TotalConnections, a.store.Path())
			return nil
		},
	})
	return cmd
}

package cmd

import (
	"fmt"
	"time"

	"github.com/polysignal/signal-engine/internal/mirror"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "Manage the mirror bot's watched-address roster",
}

//nolint:gochecknoglobals // Cobra boilerplate
var addressesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor, err := rosterMonitor()
		if err != nil {
			return err
		}

		addresses := monitor.GetAddresses()
		if len(addresses) == 0 {
			fmt.Println("No watched addresses.")
			return nil
		}
		for _, a := range addresses {
			state := "enabled"
			if !a.Enabled {
				state = "disabled"
			}
			fmt.Printf("%-44s %-16s %s\n", a.Address, a.Nickname, state)
		}
		return nil
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var addressesAddCmd = &cobra.Command{
	Use:   "add <address> <nickname>",
	Short: "Add a watched address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor, err := rosterMonitor()
		if err != nil {
			return err
		}

		added := monitor.AddAddress(args[0], args[1], 0)
		fmt.Printf("Watching %s (%s)\n", added.Address, added.Nickname)
		return nil
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var addressesRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a watched address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		monitor, err := rosterMonitor()
		if err != nil {
			return err
		}

		if !monitor.RemoveAddress(args[0]) {
			return fmt.Errorf("address %s is not watched", args[0])
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	addressesCmd.AddCommand(addressesListCmd)
	addressesCmd.AddCommand(addressesAddCmd)
	addressesCmd.AddCommand(addressesRemoveCmd)
	rootCmd.AddCommand(addressesCmd)
}

// rosterMonitor loads the persisted roster without starting any polling.
func rosterMonitor() (*mirror.AddressMonitor, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return mirror.NewAddressMonitor(mirror.MonitorConfig{
		DefaultInterval: time.Duration(cfg.Mirror.PollIntervalSecs) * time.Second,
		LogDir:          cfg.Logging.LogDir,
		Logger:          logger,
	}, nil, bus.New(10, logger), nil, nil), nil
}

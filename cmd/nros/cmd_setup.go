// Setup commands: install or remove the systemd unit that starts the bus
// with the machine or the user session.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nros/internal/setup"
)

var (
	setupUser    bool
	setupTCPPort int
)

// setupCmd groups host integration commands
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Integrate the nROS bus with the host system",
}

var installServiceCmd = &cobra.Command{
	Use:   "install-service",
	Short: "Install the systemd unit starting the bus at boot",
	RunE:  runInstallService,
}

var removeServiceCmd = &cobra.Command{
	Use:   "remove-service",
	Short: "Remove the systemd unit",
	RunE:  runRemoveService,
}

func init() {
	installServiceCmd.Flags().BoolVar(&setupUser, "user", false, "install for the user session instead of the system")
	installServiceCmd.Flags().IntVar(&setupTCPPort, "tcp-port", 0, "have the bus listen on this TCP port")
	removeServiceCmd.Flags().BoolVar(&setupUser, "user", false, "remove the user session unit")

	setupCmd.AddCommand(installServiceCmd)
	setupCmd.AddCommand(removeServiceCmd)
}

func runInstallService(cmd *cobra.Command, args []string) error {
	installed, err := setup.InstallService(setup.Options{User: setupUser, TCPPort: setupTCPPort})
	if err != nil {
		return err
	}
	if installed {
		fmt.Println("nROS bus service installed.")
	} else {
		fmt.Println("nROS bus service already installed.")
	}
	return nil
}

func runRemoveService(cmd *cobra.Command, args []string) error {
	removed, err := setup.RemoveService(setup.Options{User: setupUser})
	if err != nil {
		return err
	}
	if removed {
		fmt.Println("nROS bus service removed.")
	} else {
		fmt.Println("nROS bus service not installed.")
	}
	return nil
}

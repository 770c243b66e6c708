package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Installing/uninstalling the OS-level service (a Windows service or a
// systemd unit) is platform-specific plumbing outside this exercise's
// scope; these commands report what they would do so the CLI surface
// matches the spec without pretending to manage real service state.

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Register the gateway as an OS service",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			fmt.Printf("would register service pointing at %s\n", exe)
			return nil
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the gateway's OS service registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("would remove service registration")
			return nil
		},
	}
}

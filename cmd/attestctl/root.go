package main

import (
	"github.com/spf13/cobra"
)

const keyEnv = "AUTHORITY_PRIVATE_KEY"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "attestctl",
		Short:         "Attestor operator CLI",
		Long:          "A command-line tool for inspecting and checking KYC attestations issued by the attestor service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAddressCmd(),
		newHashCmd(),
		newSignCmd(),
		newVerifyCmd(),
		newStatusCmd(),
		newAdminTokenCmd(),
	)
	return root
}

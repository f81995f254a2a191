package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/courier/cmd/gen"
	"github.com/luma/courier/internal/meta"
)

var RootCmd = &cobra.Command{
	Use:   "courier",
	Short: "A client for the messenger service",
	Long: `Courier keeps one messenger account online: it logs in, keeps the
roster synchronised and answers the server's liveness probes.`,
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%+v\n", meta.GetInfo())
	},
}

func init() {
	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

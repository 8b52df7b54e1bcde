package main

import "github.com/spf13/cobra"

var (
	configFile   string
	stateFile    string
	outputFile   string
	outputFormat string
	debugMode    bool
	dryRun       bool
)

var rootCmd = &cobra.Command{
	Use:          "edgeroute",
	Short:        "Reverse-proxy configuration manager: links → routes",
	Long:         "edgeroute negotiates routing requests from integration links, compiles them into proxy configuration and keeps the proxy workload converged",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Runtime configuration file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVarP(&stateFile, "state", "s", "snapshot.yaml", "Host snapshot file with settings and links")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug output")

	registerReconcileCommand(rootCmd)
	registerWatchCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerRenderCommand(rootCmd)
	registerEndpointsCommand(rootCmd)
}

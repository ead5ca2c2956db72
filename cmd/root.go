package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/boostpack/boostpack/internal/config"
	"github.com/boostpack/boostpack/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "boostpack",
	Short:        "Static LightGBM packaging pipeline",
	Long:         `Build, verify and package LightGBM as a relocatable static archive across musl and glibc toolchains.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)

	rootCmd.PersistentFlags().String("source-url", "", "Git URL of the library source")
	rootCmd.PersistentFlags().String("source-ref", "", "Tag, branch or commit to build")
	rootCmd.PersistentFlags().StringP("profiles", "p", "", "Directory containing toolchain profile files")
	rootCmd.PersistentFlags().String("arena", "", "Artifact arena directory")
	rootCmd.PersistentFlags().IntP("jobs", "j", 0, "Parallel compile jobs (0 = all CPUs)")
	rootCmd.PersistentFlags().Duration("budget", 0, "Wall-clock budget for a whole run")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Rebuild even when a published bundle exists")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(transplantCmd)
	rootCmd.AddCommand(packCmd)

	viper.SetDefault("source_url", config.DefaultSourceURL)
	viper.SetDefault("source_ref", config.DefaultSourceRef)
	viper.SetDefault("budget", config.DefaultBudget)
}

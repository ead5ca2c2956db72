package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boostpack/boostpack/internal/builder"
	"github.com/boostpack/boostpack/internal/logging"
	"github.com/boostpack/boostpack/internal/toolchain"
	"github.com/boostpack/boostpack/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:          "verify <artifact-dir>",
	Short:        "Re-verify a built library artifact",
	Long:         `Check an existing artifact directory: the static archive must exist, export the library's public entry points, and carry its header tree.`,
	RunE:         runVerify,
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
}

func init() {
	verifyCmd.Flags().String("binary", "", "Also inspect this ELF binary's dynamic dependencies")
}

func runVerify(cmd *cobra.Command, args []string) error {
	log := logging.Setup(os.Stderr, "info")
	ctx := logging.WithLogger(cmd.Context(), log)

	v := verify.New(toolchain.NewRunner())

	report, err := v.VerifyLibrary(ctx, args[0], builder.ArchiveName)
	if err != nil {
		return err
	}

	fmt.Printf("archive: %s (%d bytes)\n", report.ArchivePath, report.ArchiveSize)
	fmt.Printf("entry points: %d\n", report.Symbols.EntryPoints)
	fmt.Printf("headers: %d\n", report.HeaderCount)

	binary, _ := cmd.Flags().GetString("binary")
	if binary == "" {
		return nil
	}

	info, err := verify.InspectBinary(binary)
	if err != nil {
		return err
	}

	fmt.Printf("binary: %s %s %s\n", info.Class, info.Machine, info.Type)

	if info.Static() {
		fmt.Println("no dynamic dependencies")
		return nil
	}

	for _, dep := range info.DynamicDeps {
		fmt.Printf("  needs %s\n", dep)
	}

	return nil
}

package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/Dmdv/cecil/pkg/metadata"
	"github.com/Dmdv/cecil/pkg/pdb"
)

var methodsPdbPath string

var methodsCmd = &cobra.Command{
	Use:   "methods <image>",
	Short: "List per-method debug information",
	Long: `Resolve the image's symbol store (embedded tables, an embedded
compressed PDB, or a matching .pdb file next to the image) and list the
debug record of every method that has one.`,
	Args: cobra.ExactArgs(1),
	RunE: runMethods,
}

func init() {
	methodsCmd.Flags().StringVar(&methodsPdbPath, "pdb", "", "path to the matching .pdb (defaults to the image name)")
}

func runMethods(cmd *cobra.Command, args []string) error {
	img, err := metadata.Open(args[0])
	if err != nil {
		return err
	}
	defer img.Close()

	reader, err := pdb.ReaderFor(img, methodsPdbPath)
	if err != nil {
		return err
	}
	if reader == nil {
		fmt.Fprintln(output, "no debug information available")
		return nil
	}
	defer reader.Close()

	for rid := uint32(1); rid <= img.TableLength(metadata.TableMethod); rid++ {
		info, err := reader.Read(pdb.NewMethodToken(rid))
		if err != nil {
			return err
		}
		if !info.HasSequencePoints() && info.Scope == nil && info.KickoffMethod == 0 && len(info.CustomInfos) == 0 {
			continue
		}

		fmt.Fprintf(output, "Method 0x%08x: %d sequence points", uint32(info.Method), len(info.SequencePoints))
		if info.HasSequencePoints() {
			fmt.Fprintf(output, " in %s", info.SequencePoints[0].Document.Name)
		}
		if info.KickoffMethod != 0 {
			fmt.Fprintf(output, " (kickoff 0x%08x)", uint32(info.KickoffMethod))
		}
		fmt.Fprintln(output)

		if verbose {
			spew.Fdump(output, info)
		}
	}
	return nil
}

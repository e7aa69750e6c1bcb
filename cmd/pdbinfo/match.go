package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dmdv/cecil/pkg/metadata"
	"github.com/Dmdv/cecil/pkg/pdb"
)

var matchCmd = &cobra.Command{
	Use:   "match <image> <pdb>",
	Short: "Check whether a Portable PDB belongs to an image",
	Long: `Compare the image's CodeView debug record against the PDB's own
content identifier. The two match only when the PDB was produced by the
exact build of the image.`,
	Args: cobra.ExactArgs(2),
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	img, err := metadata.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	pdbImg, err := metadata.ReadPortablePdb(data, args[1])
	if err != nil {
		return fmt.Errorf("failed to read PDB: %w", err)
	}

	if !pdb.Matches(img, pdbImg) {
		return fmt.Errorf("%s does not match %s", args[1], args[0])
	}
	fmt.Fprintf(output, "match: %s\n", guidString(pdbImg.Pdb.ContentID(), "B"))
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/Dmdv/cecil/pkg/metadata"
	"github.com/Dmdv/cecil/pkg/pdb"
)

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Display image and symbol store information",
	Long: `Display general information about a PE/CLI image or a standalone
Portable PDB file, including its debug directory and symbol identity.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	img, err := openImage(args[0])
	if err != nil {
		return err
	}
	defer img.Close()

	if img.Pdb != nil {
		return printPortablePdb(img)
	}
	return printModule(img)
}

func guidString(g metadata.GUID, format string) string {
	s, _ := g.ToString(format)
	return s
}

// openImage loads either container format: an MZ header means a PE/CLI
// image, anything else must be a bare metadata root.
func openImage(path string) (*metadata.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) >= 2 && data[0] == 'M' && data[1] == 'Z' {
		return metadata.Open(path)
	}
	return metadata.ReadPortablePdb(data, path)
}

func printModule(img *metadata.Image) error {
	fmt.Fprintf(output, "Image: %s\n", img.FileName)
	fmt.Fprintf(output, "Kind: %s\n", kindString(img.Kind))
	fmt.Fprintf(output, "Machine: 0x%04x\n", uint16(img.Architecture))
	fmt.Fprintf(output, "Timestamp: 0x%08x\n", img.Timestamp)
	if img.EntryPointToken != 0 {
		fmt.Fprintf(output, "Entry Point: 0x%08x\n", img.EntryPointToken)
	}
	for _, s := range img.Sections {
		fmt.Fprintf(output, "Section %-8s rva=0x%08x size=0x%08x\n", s.Name, s.VirtualAddress, s.VirtualSize)
	}
	if img.HasDebugTables() {
		fmt.Fprintln(output, "Debug Tables: embedded in image metadata")
	}

	entries, err := img.DebugDirectoryEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(output, "Debug Entry: type=%d stamp=0x%08x size=%d\n", e.Type, e.TimeDateStamp, e.SizeOfData)
		switch e.Type {
		case metadata.DebugTypeCodeView:
			if rec, ok := pdb.ReadCodeView(e.Data); ok {
				fmt.Fprintf(output, "  PDB Signature: %s%x\n", guidString(rec.ContentID, "N"), rec.Age)
				fmt.Fprintf(output, "  PDB Path: %s\n", rec.Path)
			}
		case metadata.DebugTypeEmbeddedPortablePdb:
			fmt.Fprintf(output, "  Embedded Portable PDB: %d bytes compressed\n", len(e.Data))
		}
	}
	if verbose && len(entries) > 0 {
		spew.Fdump(output, entries)
	}
	return nil
}

func printPortablePdb(img *metadata.Image) error {
	fmt.Fprintf(output, "Portable PDB: %s\n", img.FileName)
	fmt.Fprintf(output, "Content ID: %s\n", guidString(img.Pdb.ContentID(), "B"))
	fmt.Fprintf(output, "Stamp: 0x%08x\n", img.Pdb.Stamp())
	if img.Pdb.EntryPoint != 0 {
		fmt.Fprintf(output, "Entry Point: 0x%08x\n", img.Pdb.EntryPoint)
	}
	for _, t := range []metadata.Table{
		metadata.TableDocument,
		metadata.TableMethodDebugInformation,
		metadata.TableLocalScope,
		metadata.TableLocalVariable,
		metadata.TableLocalConstant,
		metadata.TableStateMachineMethod,
		metadata.TableCustomDebugInformation,
	} {
		if n := img.TableLength(t); n > 0 {
			fmt.Fprintf(output, "Table 0x%02x: %d rows\n", uint8(t), n)
		}
	}
	if verbose {
		spew.Fdump(output, img.Pdb)
	}
	return nil
}

func kindString(k metadata.ModuleKind) string {
	switch k {
	case metadata.KindConsole:
		return "console"
	case metadata.KindWindows:
		return "windows"
	default:
		return "dll"
	}
}

// Command bindiff compares two decoded program payloads: it runs the
// structural matcher and writes whichever of the log/result-database/
// groundtruth outputs the caller asked for. The disassembler front end and
// its binary container live outside this module (see payload.go); this
// command reads a JSON stand-in format instead of a real disassembler
// export.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/urfave/cli.v2"

	"github.com/binarydiff/matcher"
	"github.com/binarydiff/matcher/config"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/report"
	"github.com/binarydiff/matcher/store"
)

func main() {
	app := &cli.App{
		Name:  "bindiff",
		Usage: "compare two disassembled binaries and report matched functions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "primary", Usage: "primary payload (JSON)"},
			&cli.StringFlag{Name: "secondary", Usage: "secondary payload (JSON)"},
			&cli.StringFlag{Name: "output_dir", Usage: "directory to write outputs into", Value: "."},
			&cli.StringFlag{Name: "output_format", Usage: "comma-separated list of {bin,log,none}", Value: "log"},
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.BoolFlag{Name: "md_index", Usage: "print each payload's whole-graph MD-index and exit"},
			&cli.BoolFlag{Name: "export", Usage: "write only the groundtruth listing, skip log/bin outputs"},
			&cli.BoolFlag{Name: "ls", Usage: "list every function in the primary payload and exit"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	primaryPath := c.String("primary")
	if primaryPath == "" && c.Args().Len() > 0 {
		primaryPath = c.Args().Get(0)
	}
	secondaryPath := c.String("secondary")
	if secondaryPath == "" && c.Args().Len() > 1 {
		secondaryPath = c.Args().Get(1)
	}
	if primaryPath == "" {
		return cli.Exit("bindiff: --primary (or the first positional argument) is required", 1)
	}
	if primaryPath == secondaryPath {
		return cli.Exit("bindiff: primary and secondary must be different files", 1)
	}

	primary, err := loadPayload(primaryPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bindiff: %v", err), 1)
	}

	if c.Bool("ls") {
		listFunctions(primary)
		return nil
	}
	if c.Bool("md_index") {
		fmt.Printf("%s: %v\n", primaryPath, primary.MdIndex())
		if secondaryPath != "" {
			secondary, err := loadPayload(secondaryPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("bindiff: %v", err), 1)
			}
			fmt.Printf("%s: %v\n", secondaryPath, secondary.MdIndex())
		}
		return nil
	}

	if secondaryPath == "" {
		return cli.Exit("bindiff: --secondary (or a second positional argument) is required", 1)
	}
	secondary, err := loadPayload(secondaryPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bindiff: %v", err), 1)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("bindiff: load config: %v", err), 1)
	}

	outDir := c.String("output_dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return cli.Exit(fmt.Sprintf("bindiff: create output dir: %v", err), 1)
	}

	result := bindiff.Diff(primary, secondary, cfg, nil)

	if c.Bool("export") {
		if err := writeGroundtruth(outDir, primary, secondary, result); err != nil {
			return cli.Exit(fmt.Sprintf("bindiff: %v", err), 1)
		}
		return nil
	}

	for _, f := range strings.Split(c.String("output_format"), ",") {
		switch strings.TrimSpace(f) {
		case "log":
			if err := writeLog(outDir, primary, secondary, result, cfg); err != nil {
				return cli.Exit(fmt.Sprintf("bindiff: %v", err), 1)
			}
		case "bin":
			if err := writeBin(outDir, primary, secondary, result); err != nil {
				return cli.Exit(fmt.Sprintf("bindiff: %v", err), 1)
			}
		case "none", "":
			// nothing to write
		default:
			return cli.Exit(fmt.Sprintf("bindiff: unknown output format %q", f), 1)
		}
	}

	fmt.Printf("matched %d functions, similarity %.4f, confidence %.4f\n",
		result.Store.Len(), result.Similarity, result.Confidence)
	return nil
}

func outputPath(outDir, primary, secondary, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(primary), filepath.Ext(primary)) + "_vs_" +
		strings.TrimSuffix(filepath.Base(secondary), filepath.Ext(secondary))
	return filepath.Join(outDir, base+suffix)
}

func writeLog(outDir string, primary, secondary *model.CallGraph, result *bindiff.Result, cfg config.Config) error {
	path := outputPath(outDir, primary.ExeFilename(), secondary.ExeFilename(), ".log")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	defer f.Close()
	return report.WriteLog(f, primary, secondary, result.Store, cfg.ResolvedStepWeights())
}

func writeGroundtruth(outDir string, primary, secondary *model.CallGraph, result *bindiff.Result) error {
	path := outputPath(outDir, primary.ExeFilename(), secondary.ExeFilename(), ".groundtruth.txt")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %q: %w", path, err)
	}
	defer f.Close()
	return report.WriteGroundtruth(f, result.Store)
}

func writeBin(outDir string, primary, secondary *model.CallGraph, result *bindiff.Result) error {
	path := outputPath(outDir, primary.ExeFilename(), secondary.ExeFilename(), ".BinDiff")
	db, err := store.Open(path, true)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.WriteMetadata(ctx, primary, secondary, result.Similarity, result.Confidence); err != nil {
		return err
	}
	return db.WriteFixedPoints(ctx, result.Store)
}

func listFunctions(g *model.CallGraph) {
	type row struct {
		addr uint64
		name string
	}
	rows := make([]row, 0, g.VertexCount())
	for v := 0; v < g.VertexCount(); v++ {
		rows = append(rows, row{addr: uint64(g.Address(uint32(v))), name: g.GoodName(uint32(v))})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].addr < rows[j].addr })
	for _, r := range rows {
		fmt.Printf("%016x %s\n", r.addr, r.name)
	}
}

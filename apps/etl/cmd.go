package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/cases"
	"github.com/staffhub/backend/storage/casesfs"
)

var (
	errHelp     = errors.New("help provided")
	errFatalRun = errors.New("ETL run failed")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer
	deps   depsFactory
}

func newCommandLine(conf *core.Config, logger core.Logger, out io.Writer) *commandLine {
	return &commandLine{conf: conf, logger: logger, out: out, deps: newDeps}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  run [-dry-run] [-dir DIR]     - run the CASES ETL once and print the result")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]        - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  validate-schema [-path PATH]  - check the relationships document")
	fmt.Fprintln(cli.out, "  snapshots [-limit N]          - list the latest pre-run snapshots")
	fmt.Fprintln(cli.out, "  serve                         - start the scheduler and the operations API")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCmd := flag.NewFlagSet("run", flag.ContinueOnError)
	runCmd.SetOutput(cli.out)
	runDry := runCmd.Bool("dry-run", false, "Load into an in-memory store, without archiving or notifying.")
	runDir := runCmd.String("dir", "", "The CASES export directory (defaults to the configured one).")

	schemaCmd := flag.NewFlagSet("validate-schema", flag.ContinueOnError)
	schemaCmd.SetOutput(cli.out)
	schemaPath := schemaCmd.String("path", "", "The relationships document (defaults to the configured one).")

	snapshotsCmd := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	snapshotsCmd.SetOutput(cli.out)
	snapshotsLimit := snapshotsCmd.Int("limit", 10, "The number of snapshots to list.")

	switch args[1] {
	case "run":
		if err := runCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *runDir != "" {
			cli.conf.Cases.Directory = *runDir
		}
		return cli.runOnce(ctx, *runDry)
	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "validate-schema":
		if err := schemaCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		path := *schemaPath
		if path == "" {
			path = cli.conf.Cases.RelationshipsPath
		}
		return cli.validateSchema(ctx, path)
	case "snapshots":
		if err := snapshotsCmd.Parse(args[2:]); err != nil || *snapshotsLimit < 1 {
			return errHelp
		}
		return cli.snapshots(ctx, *snapshotsLimit)
	case "serve":
		return cli.serve(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

// runOnce runs the ETL and prints the RunResult as JSON. Fatal runs return errFatalRun.
func (cli *commandLine) runOnce(ctx context.Context, dryRun bool) error {
	d, err := cli.deps(ctx, cli.conf, cli.logger, dryRun)
	if err != nil {
		return err
	}
	defer d.Close()

	runner, err := d.Runner()
	if err != nil {
		return err
	}
	res := runner.Run(ctx)

	if err = cli.printJSON(res); err != nil {
		return err
	}
	if res.Fatal {
		return errFatalRun
	}
	return nil
}

// snapshots prints the latest snapshots as JSON, newest first.
func (cli *commandLine) snapshots(ctx context.Context, limit int) error {
	d, err := cli.deps(ctx, cli.conf, cli.logger, false)
	if err != nil {
		return err
	}
	defer d.Close()

	snaps, err := d.repo.Snapshots(ctx, limit)
	if err != nil {
		return err
	}
	return cli.printJSON(snaps)
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// validateSchema loads the document and resolves the layout of every catalogued file,
// flagging the files found in the export directory.
func (cli *commandLine) validateSchema(ctx context.Context, path string) error {
	registry := cases.NewRegistry(path, cli.logger)
	if err := registry.ValidateDocument(); err != nil {
		return err
	}

	present := make(map[string]bool)
	loader := casesfs.NewLoader(cli.conf.Cases.Directory, cases.DefaultCatalogue, cli.logger)
	if files, err := loader.ListFiles(ctx); err == nil {
		for _, f := range files {
			present[f] = true
		}
	} else {
		cli.logger.Debug(fmt.Sprintf("not checking export files: %v", err))
	}

	for _, def := range cases.DefaultCatalogue {
		mark := " "
		if present[def.Filename] {
			mark = "*"
		}
		layout, err := registry.ResolveLayout(def.Filename)
		if err != nil {
			fmt.Fprintf(cli.out, "%s %-12s no layout\n", mark, def.Filename)
			continue
		}
		format := layout.Format
		if format == "" {
			format = cases.FormatFixedWidth
		}
		fmt.Fprintf(cli.out, "%s %-12s %-5s %d columns%s\n", mark, def.Filename, format, len(layout.Columns), describe(registry, def))
	}
	fmt.Fprintf(cli.out, "%s is valid\n", path)
	return nil
}

func describe(registry *cases.Registry, def cases.FileDef) string {
	var b strings.Builder
	if def.Required {
		b.WriteString(" required")
	}
	if table, ok := cases.TableForFile(def.Filename); ok {
		b.WriteString(" table=" + table)
		if keys := registry.PrimaryKeys(table); len(keys) > 0 {
			b.WriteString(" keys=" + strings.Join(keys, ","))
		}
	}
	return b.String()
}

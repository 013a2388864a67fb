package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/cases"
	"github.com/staffhub/backend/core/etl"
	testutil "github.com/staffhub/backend/tests"
)

func setup(t *testing.T, casesDir string) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := &core.Config{
		Env:      "TEST",
		TestMode: true,
		WorkDir:  t.TempDir(),
		Cases: core.CasesConfig{
			Directory:        casesDir,
			ArchiveDirectory: t.TempDir(),
		},
		Retry: core.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 1},
	}
	out := new(bytes.Buffer)
	return newCommandLine(conf, testutil.NewLogger(), out), out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t, "")
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "bad run flag", args: []string{"run", "-lol"}, wantErr: errHelp},
		{name: "migrate without command", args: []string{"migrate"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"etl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Contains(t, out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t, "")

	var created int
	createDBFunc = func(context.Context, *core.Config) error {
		created++
		return nil
	}
	openDBFunc = func(context.Context, *core.Config) (*sql.DB, error) {
		return sql.Open("postgres", "postgres://localhost/staffhub_test?sslmode=disable") // not connected
	}
	runMigrationsFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "absences", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"etl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Equal(t, 1, created, "the database is only created before migrating up")
}

func Test_commandLine_runDryRun(t *testing.T) {
	dir := testutil.WriteExport(t, testutil.ValidExport(t))
	cli, out := setup(t, dir)

	require.NoError(t, cli.run([]string{"etl", "run", "-dry-run"}))

	var res etl.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res), out.String())
	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, 2, res.Stats.Students.Created)
	assert.Equal(t, 1, res.Stats.Staff.Created)

	entries, err := os.ReadDir(cli.conf.Cases.ArchiveDirectory)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry runs do not archive")
}

func Test_commandLine_runFatal(t *testing.T) {
	cli, out := setup(t, "")

	missing := filepath.Join(t.TempDir(), "nope")
	err := cli.run([]string{"etl", "run", "-dry-run", "-dir", missing})
	assert.Equal(t, errFatalRun, err)

	var res etl.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res), out.String())
	assert.False(t, res.Success)
	assert.Equal(t, []string{"CASES directory not found: " + missing}, res.Errors)
}

func Test_commandLine_validateSchema(t *testing.T) {
	write := func(t *testing.T, name, content string) string {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	valid := write(t, "relationships.json", `{
		"primary_keys": {"DF_8865": ["STKEY"], "SF_8865": ["SFKEY"]},
		"file_layouts": {"HOUSE.DAT": {"format": "csv", "columns": [{"name": "HOUSE_CODE"}, {"name": "HOUSE_NAME"}]}}
	}`)
	noKeys := write(t, "relationships.yaml", "file_layouts: {}\n")
	badLayout := write(t, "bad.json", `{
		"primary_keys": {"DF_8865": ["STKEY"]},
		"file_layouts": {"STAFF.DAT": {"columns": [{"name": "SFKEY", "start": 0, "width": 0}]}}
	}`)

	tests := []cliTest{
		{name: "valid", args: []string{"validate-schema", "-path", valid}},
		{name: "missing", args: []string{"validate-schema", "-path", filepath.Join(t.TempDir(), "nope.json")}, wantErrStr: "reading relationships document"},
		{name: "no primary keys", args: []string{"validate-schema", "-path", noKeys}, wantErrStr: "missing primary_keys"},
		{name: "invalid layout", args: []string{"validate-schema", "-path", badLayout}, wantErrStr: "layout STAFF.DAT"},
	}
	for _, tt := range tests {
		args := append([]string{"etl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t, testutil.WriteExport(t, map[string]string{cases.HouseFile: ""}))
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				assert.Contains(t, out.String(), "is valid")
				assert.Regexp(t, `\* `+cases.HouseFile+` +csv +2 columns`, out.String())
				assert.Regexp(t, `  `+cases.StaffFile+` +fixed`, out.String())
				assert.Contains(t, out.String(), "required table=DF_8865 keys=STKEY")
			}
		})
	}
}

func Test_commandLine_snapshots(t *testing.T) {
	cli, out := setup(t, "")
	var dryRunRequested bool
	cli.deps = func(ctx context.Context, conf *core.Config, logger core.Logger, dryRun bool) (*deps, error) {
		dryRunRequested = dryRun
		d, err := newDeps(ctx, conf, logger, true)
		if err != nil {
			return nil, err
		}
		for i := 0; i < 3; i++ {
			if _, err = d.repo.Snapshot(ctx); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	tests := []cliTest{
		{name: "bad limit", args: []string{"snapshots", "-limit", "0"}, wantErr: errHelp},
		{name: "limit", args: []string{"snapshots", "-limit", "2"}},
	}
	for _, tt := range tests {
		args := append([]string{"etl"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	assert.False(t, dryRunRequested)
	var snaps []cases.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snaps), out.String())
	assert.Len(t, snaps, 2)
}

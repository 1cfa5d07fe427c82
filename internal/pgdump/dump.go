package pgdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kadirbelkuyu/dbclone/internal/config"
	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/rewrite"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

type Options struct {
	SchemaOnly    bool
	DataOnly      bool
	Tables        []string
	ExcludeTables []string
}

// Runner pipes pg_dump of the source schema into psql on the target,
// rewriting schema references on the way through.
type Runner struct {
	source   config.DatabaseConfig
	target   config.DatabaseConfig
	rewriter *rewrite.Rewriter
	log      *logger.Logger

	DumpCommand    string
	RestoreCommand string
}

func NewRunner(source, target config.DatabaseConfig, rewriter *rewrite.Rewriter, log *logger.Logger) *Runner {
	return &Runner{
		source:         source,
		target:         target,
		rewriter:       rewriter,
		log:            log,
		DumpCommand:    "pg_dump",
		RestoreCommand: "psql",
	}
}

func (r *Runner) DumpArgs(options Options) []string {
	args := []string{
		fmt.Sprintf("--host=%s", r.source.Host),
		fmt.Sprintf("--port=%d", r.source.Port),
		fmt.Sprintf("--username=%s", r.source.Username),
		fmt.Sprintf("--dbname=%s", r.source.Database),
		fmt.Sprintf("--schema=%s", rewrite.Ident(r.source.Schema)),
		"--format=plain",
		"--no-owner",
		"--no-privileges",
	}

	if options.SchemaOnly {
		args = append(args, "--schema-only")
	}

	if options.DataOnly {
		args = append(args, "--data-only")
	}

	for _, table := range options.Tables {
		args = append(args, fmt.Sprintf("--table=%s", rewrite.Qualified(r.source.Schema, table)))
	}

	for _, table := range options.ExcludeTables {
		args = append(args, fmt.Sprintf("--exclude-table=%s", rewrite.Qualified(r.source.Schema, table)))
	}

	return args
}

func (r *Runner) RestoreArgs() []string {
	return []string{
		fmt.Sprintf("--host=%s", r.target.Host),
		fmt.Sprintf("--port=%d", r.target.Port),
		fmt.Sprintf("--username=%s", r.target.Username),
		fmt.Sprintf("--dbname=%s", r.target.Database),
		"--no-psqlrc",
		"--quiet",
		"--set=ON_ERROR_STOP=1",
	}
}

// Run executes the pipeline. A failure to start either process, a non-zero
// exit or any stderr output is reported as ErrCommandExecution.
func (r *Runner) Run(ctx context.Context, options Options) error {
	dump := exec.CommandContext(ctx, r.DumpCommand, r.DumpArgs(options)...)
	dump.Env = append(os.Environ(), connEnv(r.source)...)
	var dumpStderr bytes.Buffer
	dump.Stderr = &dumpStderr

	dumpOut, err := dump.StdoutPipe()
	if err != nil {
		return database.CommandError(r.DumpCommand, err)
	}

	restore := exec.CommandContext(ctx, r.RestoreCommand, r.RestoreArgs()...)
	restore.Env = append(os.Environ(), connEnv(r.target)...)
	restore.Env = append(restore.Env, "PGOPTIONS=-c client_min_messages=warning")
	var restoreStderr bytes.Buffer
	restore.Stderr = &restoreStderr

	output := r.log.WriterLevel(logrus.DebugLevel)
	defer output.Close()
	restore.Stdout = output

	restoreIn, err := restore.StdinPipe()
	if err != nil {
		return database.CommandError(r.RestoreCommand, err)
	}

	r.log.Debugf("executing %s %s | %s %s", r.DumpCommand, strings.Join(r.DumpArgs(options), " "),
		r.RestoreCommand, strings.Join(r.RestoreArgs(), " "))

	if err := restore.Start(); err != nil {
		return database.CommandError(r.RestoreCommand, err)
	}

	if err := dump.Start(); err != nil {
		restoreIn.Close()
		restore.Wait()
		return database.CommandError(r.DumpCommand, err)
	}

	copyErr := r.rewriter.RewriteDump(restoreIn, dumpOut, r.source.Schema)
	restoreIn.Close()
	if copyErr != nil {
		// psql stopped reading; drain so pg_dump can exit.
		io.Copy(io.Discard, dumpOut)
	}

	dumpErr := dump.Wait()
	restoreErr := restore.Wait()

	switch {
	case dumpErr != nil:
		return database.CommandError(r.DumpCommand, withStderr(dumpErr, &dumpStderr))
	case restoreErr != nil:
		return database.CommandError(r.RestoreCommand, withStderr(restoreErr, &restoreStderr))
	case copyErr != nil:
		return database.CommandError(r.RestoreCommand, copyErr)
	}

	if dumpStderr.Len() > 0 {
		return database.CommandError(r.DumpCommand, errors.New(strings.TrimSpace(dumpStderr.String())))
	}
	if restoreStderr.Len() > 0 {
		return database.CommandError(r.RestoreCommand, errors.New(strings.TrimSpace(restoreStderr.String())))
	}

	return nil
}

func withStderr(err error, stderr *bytes.Buffer) error {
	message := strings.TrimSpace(stderr.String())
	if message == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, message)
}

func connEnv(cfg config.DatabaseConfig) []string {
	var env []string
	if cfg.Password != "" {
		env = append(env, fmt.Sprintf("PGPASSWORD=%s", cfg.Password))
	}
	if cfg.SSLMode != "" {
		env = append(env, fmt.Sprintf("PGSSLMODE=%s", cfg.SSLMode))
	}
	return env
}

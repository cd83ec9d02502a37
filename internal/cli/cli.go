// Package cli implements the runitdb command-line client on top of the
// database package.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/x/ansi"
	flags "github.com/jessevdk/go-flags"

	"runitdb/database"
	"runitdb/internal/config"
	"runitdb/logging"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// App carries the state shared by every command of one invocation.
type App struct {
	ctx    context.Context
	opts   config.Options
	stdout io.Writer
	stderr io.Writer
	logger *logging.Logger
}

// Run parses args, executes the selected command and returns the process
// exit code.
func Run(ctx context.Context, version string, args []string, stdout, stderr io.Writer) int {
	logger := logging.New(false)
	logger.SetOutput(stderr)
	defer func() {
		_ = logger.Close()
	}()

	app := &App{ctx: ctx, stdout: stdout, stderr: stderr, logger: logger}
	parser := config.NewParser(&app.opts)
	parser.Options &^= flags.PrintErrors
	parser.Name = "runitdb"
	app.register(parser)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) {
			if flagErr.Type == flags.ErrHelp {
				fmt.Fprintln(stdout, flagErr.Message)
				return exitOK
			}
			fmt.Fprintln(stderr, flagErr.Message)
			return exitUsage
		}
		if errors.Is(err, database.ErrConfig) {
			fmt.Fprintln(stderr, "configuration error:", ansi.Strip(err.Error()))
			return exitUsage
		}
		fmt.Fprintln(stderr, ansi.Strip(err.Error()))
		logger.Debug("command failed", logging.Field("version", version), logging.Field("error", err))
		return exitError
	}
	return exitOK
}

func (a *App) register(parser *flags.Parser) {
	mustAdd := func(name, short string, data any) {
		if _, err := parser.AddCommand(name, short, "", data); err != nil {
			panic(fmt.Sprintf("cli: add command %q: %v", name, err))
		}
	}
	mustAdd("configure", "Save the connection settings as the default profile", &configureCommand{app: a})
	mustAdd("count", "Count documents matching a filter", &countCommand{app: a})
	mustAdd("select", "Select columns of documents matching a filter", &selectCommand{app: a})
	mustAdd("all", "List every document in a collection", &allCommand{app: a})
	mustAdd("get", "Fetch a document by ID", &getCommand{app: a})
	mustAdd("find-one", "Find the first document matching a filter", &findOneCommand{app: a})
	mustAdd("find", "Find documents matching a filter", &findCommand{app: a})
	mustAdd("insert", "Insert one document", &insertCommand{app: a})
	mustAdd("insert-many", "Insert a JSON array of documents", &insertManyCommand{app: a})
	mustAdd("update", "Update documents matching a filter", &updateCommand{app: a})
	mustAdd("remove", "Remove documents matching a filter", &removeCommand{app: a})
	mustAdd("subscribe", "Print collection change events until interrupted", &subscribeCommand{app: a})
}

// resolvedOptions merges the command line and environment with the saved
// profile.
func (a *App) resolvedOptions() config.Options {
	opts := a.opts
	saved, err := config.LoadSettings()
	if err != nil {
		a.logger.Warn("failed to load saved settings", logging.Field("error", err))
		return opts
	}
	return config.MergeOptionsWithSettings(opts, saved)
}

func (a *App) client() (*database.Client, error) {
	opts := a.resolvedOptions()
	a.logger.SetDebugEnabled(opts.Debug)
	if opts.PersistLogs {
		if err := a.logger.EnableFilePersistence(0); err != nil {
			a.logger.Warn("failed to enable file log persistence", logging.Field("error", err))
		}
	}
	conn := opts.Connection()
	return database.New(database.Config{
		Endpoint:  conn.Endpoint,
		APIKey:    conn.APIKey,
		ProjectID: conn.ProjectID,
		Timeout:   opts.Timeout,
		Logger:    a.logger,
	})
}

func (a *App) collection(name string) (*database.Client, *database.CollectionHandle, error) {
	client, err := a.client()
	if err != nil {
		return nil, nil, err
	}
	handle, err := client.Collection(name)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, handle, nil
}

func (a *App) printResult(result database.Result) error {
	return a.printJSON(json.RawMessage(result))
}

func (a *App) printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

func parseFilter(raw string) (database.Filter, error) {
	if raw == "" {
		return nil, nil
	}
	var filter database.Filter
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return nil, fmt.Errorf("%w: filter must be a JSON object: %v", database.ErrConfig, err)
	}
	return filter, nil
}

func parseDocument(raw string) (database.Document, error) {
	var doc database.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", database.ErrConfig)
	}
	return doc, nil
}

func parseDocuments(raw string) ([]database.Document, error) {
	var docs []database.Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, fmt.Errorf("%w: documents must be a JSON array of objects: %v", database.ErrConfig, err)
	}
	return docs, nil
}

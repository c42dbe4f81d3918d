package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/reusee/dscope"
	"github.com/reusee/stacktester/cmds"
	"github.com/reusee/stacktester/debugs"
	"github.com/reusee/stacktester/dumps"
	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/logs"
	"github.com/reusee/stacktester/memkv"
	"github.com/reusee/stacktester/modes"
	"github.com/reusee/stacktester/stacktester"
	"github.com/reusee/stacktester/storages"
	"github.com/reusee/stacktester/testerconfigs"
)

var (
	prefixFlag  = cmds.Var[[]byte]("-prefix", "prefix of the instructions to run; escapes like \\x00 allowed")
	dumpFlag    = cmds.Var[string]("-dump", "printed test to store before running")
	recordsFlag = cmds.Var[string]("-records", "also write LOG_STACK records to this CBOR file")
	timeoutFlag = cmds.Var[time.Duration]("-timeout", "abort the run after this duration")
	tapFlag     = cmds.Switch("-tap", "open a Starlark REPL over the machine state on failure")
)

const defaultPrefix = "test_spec"

type Module struct {
	dscope.Module
	Tester stacktester.Module
	Debugs debugs.Module
}

func main() {
	cmds.Execute(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	exitCode := 0
	dscope.New(
		new(Module),
		modes.ForProduction(),
	).Call(func(
		newMachine stacktester.New,
		logger logs.Logger,
		databasePath testerconfigs.DatabasePath,
		retainVersions testerconfigs.RetainVersions,
		batchSize testerconfigs.LogBatchSize,
		maxRetries testerconfigs.MaxRetries,
		tap debugs.Tap,
	) {
		prefix := []byte(defaultPrefix)
		if len(*prefixFlag) > 0 {
			prefix = *prefixFlag
		}

		// store
		options := []memkv.Option{
			memkv.RetainVersions(int64(retainVersions)),
		}
		var sqlite *storages.SQLite
		if databasePath != "" {
			var err error
			sqlite, err = storages.OpenSQLite(ctx, string(databasePath))
			if err != nil {
				fatal(logger, "open database", err)
			}
			defer sqlite.Close()
			options = append(options, memkv.WithPersister(sqlite.Persister(context.WithoutCancel(ctx))))
		}
		store := memkv.New(options...)
		if sqlite != nil {
			if err := sqlite.Restore(ctx, store); err != nil {
				fatal(logger, "restore database", err)
			}
			logger.Info("database restored",
				"path", databasePath,
				"version", store.Version(),
			)
		}

		// instructions
		if *dumpFlag != "" {
			prefix = loadDump(ctx, logger, store, *dumpFlag, prefix)
		}

		// sinks
		var machineOptions []stacktester.MachineOption
		if *recordsFlag != "" {
			f, err := os.Create(*recordsFlag)
			if err != nil {
				fatal(logger, "create records file", err)
			}
			defer f.Close()
			machineOptions = append(machineOptions, stacktester.WithSink(stacktester.MultiSink{
				&stacktester.StoreSink{
					DB:         store,
					BatchSize:  int(batchSize),
					MaxRetries: int(maxRetries),
				},
				stacktester.NewCBORSink(f),
			}))
		}

		machine := newMachine(store, prefix, machineOptions...)
		if err := machine.RunStored(ctx); err != nil {
			span, _ := logs.SpanOf(err)
			logger.ErrorContext(ctx, "run failed",
				"prefix", prefix,
				"span", span,
				"error", err,
			)
			fmt.Fprintln(os.Stderr, err)
			if *tapFlag {
				tap(ctx, "fatal", machine.DebugState())
			}
			exitCode = 1
			return
		}
		logger.Info("run finished",
			"prefix", prefix,
		)
	})

	if exitCode != 0 {
		stop()
		os.Exit(exitCode)
	}
}

// loadDump stores every thread of the dump and returns the prefix of its first thread.
func loadDump(ctx context.Context, logger logs.Logger, db kv.Transactor, path string, prefix []byte) []byte {
	f, err := os.Open(path)
	if err != nil {
		fatal(logger, "open dump", err)
	}
	defer f.Close()
	dump, err := dumps.Parse(f, prefix)
	if err != nil {
		fatal(logger, "parse dump", err)
	}
	if err := dump.Store(ctx, db); err != nil {
		fatal(logger, "store dump", err)
	}
	logger.Info("dump loaded",
		"name", dump.Name,
		"threads", len(dump.Threads),
	)
	if len(dump.Threads) > 0 {
		return dump.Threads[0].Prefix
	}
	return prefix
}

func fatal(logger logs.Logger, what string, err error) {
	logger.Error(what, "error", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

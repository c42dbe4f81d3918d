package stacktester

import (
	"github.com/reusee/dscope"
	"github.com/reusee/stacktester/kv"
	"github.com/reusee/stacktester/logs"
	"github.com/reusee/stacktester/testerconfigs"
)

type Module struct {
	dscope.Module
	Logs    logs.Module
	Configs testerconfigs.Module
}

// New creates a machine for the instructions under prefix, configured from the scope.
type New func(db kv.Database, prefix []byte, options ...MachineOption) *Machine

func (Module) New(
	logger logs.Logger,
	newSpan logs.NewSpan,
	valueLimit testerconfigs.LogValueLimit,
	batchSize testerconfigs.LogBatchSize,
	maxRetries testerconfigs.MaxRetries,
) New {
	return func(db kv.Database, prefix []byte, options ...MachineOption) *Machine {
		defaults := []MachineOption{
			WithLogger(logger),
			WithNewSpan(newSpan),
			WithLogValueLimit(int(valueLimit)),
			WithMaxRetries(int(maxRetries)),
			WithSink(&StoreSink{
				DB:         db,
				BatchSize:  int(batchSize),
				MaxRetries: int(maxRetries),
			}),
		}
		return NewMachine(db, prefix, append(defaults, options...)...)
	}
}

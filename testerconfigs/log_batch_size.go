package testerconfigs

import (
	"github.com/reusee/stacktester/cmds"
	"github.com/reusee/stacktester/configs"
	"github.com/reusee/stacktester/vars"
)

type LogBatchSize int

var _ configs.Configurable = LogBatchSize(0)

func (LogBatchSize) ConfigPath() string {
	return "log_batch_size"
}

var logBatchSizeFlag = cmds.Var[int]("-log-batch-size", "LOG_STACK records per transaction")

func (Module) LogBatchSize(
	loader configs.Loader,
) LogBatchSize {
	return LogBatchSize(vars.FirstNonZero(
		*logBatchSizeFlag,
		int(configs.Lookup[LogBatchSize](loader)),
		100,
	))
}

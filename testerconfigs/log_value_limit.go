package testerconfigs

import (
	"github.com/reusee/stacktester/cmds"
	"github.com/reusee/stacktester/configs"
	"github.com/reusee/stacktester/vars"
)

// LogValueLimit caps the packed size of each value LOG_STACK records.
type LogValueLimit int

var _ configs.Configurable = LogValueLimit(0)

func (LogValueLimit) ConfigPath() string {
	return "log_value_limit"
}

var logValueLimitFlag = cmds.Var[int]("-log-value-limit", "bytes kept of each logged value")

func (Module) LogValueLimit(
	loader configs.Loader,
) LogValueLimit {
	return LogValueLimit(vars.FirstNonZero(
		*logValueLimitFlag,
		int(configs.Lookup[LogValueLimit](loader)),
		40000,
	))
}

package testerconfigs

import (
	"github.com/reusee/stacktester/cmds"
	"github.com/reusee/stacktester/configs"
	"github.com/reusee/stacktester/vars"
)

// MaxRetries bounds retries of direct database operations. Zero retries until success.
type MaxRetries int

var _ configs.Configurable = MaxRetries(0)

func (MaxRetries) ConfigPath() string {
	return "max_retries"
}

var maxRetriesFlag = cmds.Var[int]("-max-retries", "retry limit of direct database operations; 0 is unbounded")

func (Module) MaxRetries(
	loader configs.Loader,
) MaxRetries {
	return MaxRetries(vars.FirstNonZero(
		*maxRetriesFlag,
		int(configs.Lookup[MaxRetries](loader)),
	))
}

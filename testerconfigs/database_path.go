package testerconfigs

import (
	"github.com/reusee/stacktester/cmds"
	"github.com/reusee/stacktester/configs"
	"github.com/reusee/stacktester/vars"
)

// DatabasePath is the sqlite file backing the store. Empty means in memory.
type DatabasePath string

var _ configs.Configurable = DatabasePath("")

func (DatabasePath) ConfigPath() string {
	return "database_path"
}

var databasePathFlag = cmds.Var[string]("-db", "sqlite file persisting the store")

func (Module) DatabasePath(
	loader configs.Loader,
) DatabasePath {
	return DatabasePath(vars.FirstNonZero(
		*databasePathFlag,
		string(configs.Lookup[DatabasePath](loader)),
	))
}

package testerconfigs

import (
	"github.com/reusee/stacktester/cmds"
	"github.com/reusee/stacktester/configs"
	"github.com/reusee/stacktester/vars"
)

// RetainVersions is how many commit versions behind the latest stay readable.
type RetainVersions int64

var _ configs.Configurable = RetainVersions(0)

func (RetainVersions) ConfigPath() string {
	return "retain_versions"
}

var retainVersionsFlag = cmds.Var[int64]("-retain-versions", "commit versions readable behind the latest one")

func (Module) RetainVersions(
	loader configs.Loader,
) RetainVersions {
	return RetainVersions(vars.FirstNonZero(
		*retainVersionsFlag,
		int64(configs.Lookup[RetainVersions](loader)),
		5000000,
	))
}

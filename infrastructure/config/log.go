package config

import (
	"github.com/crowcoin/crowd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CNFG")

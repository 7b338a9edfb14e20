package app

import (
	"github.com/crowcoin/crowd/infrastructure/logger"
	"github.com/crowcoin/crowd/util/panics"
)

var log = logger.RegisterSubSystem("CROW")
var spawn = panics.GoroutineWrapperFunc(log)

package rpc

import (
	"github.com/crowcoin/crowd/infrastructure/logger"
	"github.com/crowcoin/crowd/util/panics"
)

var log = logger.RegisterSubSystem("RPCS")
var spawn = panics.GoroutineWrapperFunc(log)

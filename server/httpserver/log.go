package httpserver

import (
	"github.com/crowcoin/crowd/infrastructure/logger"
	"github.com/crowcoin/crowd/util/panics"
)

var log = logger.RegisterSubSystem("HTTP")
var spawn = panics.GoroutineWrapperFunc(log)
var afterFunc = panics.AfterFuncWrapperFunc(log)

package logger

import (
	"go.uber.org/zap"
)

// Log is a no-op until Init runs, so library code can log before main
// wires the real logger (and tests don't have to).
var Log = zap.NewNop().Sugar()

func Init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

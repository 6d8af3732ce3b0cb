package main

import (
	"sync"

	"gorm.io/gorm"

	"sd-index/config"
)

type Context struct {
	Config  *config.Config
	DB      *gorm.DB
	Emitter ChangeEmitter

	runMutex  sync.Mutex
	runningOp string
}

// beginRun claims the catalog for one mutating pass. Scans and duplicate
// resolution both mutate file records and must never interleave.
func (ctx *Context) beginRun(operation string) error {
	ctx.runMutex.Lock()
	defer ctx.runMutex.Unlock()

	if ctx.runningOp != "" {
		return ErrOperationInProgress
	}

	ctx.runningOp = operation
	return nil
}

func (ctx *Context) endRun() {
	ctx.runMutex.Lock()
	defer ctx.runMutex.Unlock()
	ctx.runningOp = ""
}

func (ctx *Context) emitter() ChangeEmitter {
	if ctx.Emitter == nil {
		return LogEmitter{}
	}

	return ctx.Emitter
}

// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scheduler launches lcore loops. Every loop runs on its own
// goroutine locked to an OS thread pinned to the lcore CPU, and all loops
// share one stop flag.
package scheduler

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/intel-go/nff-pktgen/common"
)

// LcoreBody is the main loop of an lcore. It must return soon after stop
// becomes true.
type LcoreBody func(core int, stop *atomic.Bool)

// LcoreFunction is a loop bound to one lcore.
type LcoreFunction struct {
	name string
	core int
	body LcoreBody
}

// Name returns the function name used in logs.
func (lf *LcoreFunction) Name() string {
	return lf.name
}

// Core returns the lcore of the function.
func (lf *LcoreFunction) Core() int {
	return lf.core
}

// Scheduler starts and stops lcore functions.
type Scheduler struct {
	functions []*LcoreFunction
	usedCores map[int]string
	allowed   unix.CPUSet
	pin       bool
	stop      atomic.Bool
	running   sync.WaitGroup
	started   bool
}

// NewScheduler creates a scheduler. When pin is false the loops are locked
// to OS threads but the threads are not pinned.
func NewScheduler(pin bool) *Scheduler {
	scheduler := &Scheduler{
		usedCores: make(map[int]string),
		pin:       pin,
	}
	if err := unix.SchedGetaffinity(0, &scheduler.allowed); err != nil {
		common.LogWarning(common.Initialization, "Can't read allowed CPU set:", err)
		scheduler.allowed.Zero()
	}
	return scheduler
}

// NewLcoreFunction registers body to run on core. An lcore hosts exactly one
// function.
func (scheduler *Scheduler) NewLcoreFunction(name string, core int, body LcoreBody) (*LcoreFunction, error) {
	if scheduler.started {
		return nil, common.WrapWithNFError(nil, "scheduler is already started", common.EngineStarted)
	}
	if core < 0 {
		return nil, common.WrapWithNFError(nil, "negative lcore "+strconv.Itoa(core)+" for "+name, common.InvalidLcoreAssignment)
	}
	if owner, ok := scheduler.usedCores[core]; ok {
		return nil, common.WrapWithNFError(nil, "lcore "+strconv.Itoa(core)+" is used by "+owner+
			" and can't run "+name, common.InvalidLcoreAssignment)
	}
	scheduler.usedCores[core] = name
	lf := &LcoreFunction{name: name, core: core, body: body}
	scheduler.functions = append(scheduler.functions, lf)
	return lf, nil
}

// UsedCores returns the number of registered lcores.
func (scheduler *Scheduler) UsedCores() int {
	return len(scheduler.usedCores)
}

// SystemStart starts every registered function.
func (scheduler *Scheduler) SystemStart() {
	scheduler.started = true
	scheduler.stop.Store(false)
	for i := range scheduler.functions {
		lf := scheduler.functions[i]
		common.LogDebug(common.Initialization, "Start lcore function", lf.name, "at", lf.core, "core")
		scheduler.running.Add(1)
		go func() {
			defer scheduler.running.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if scheduler.pin {
				scheduler.setAffinity(lf)
			}
			lf.body(lf.core, &scheduler.stop)
			common.LogDebug(common.Debug, "Lcore function", lf.name, "at", lf.core, "core stopped")
		}()
	}
}

func (scheduler *Scheduler) setAffinity(lf *LcoreFunction) {
	if scheduler.allowed.Count() != 0 && !scheduler.allowed.IsSet(lf.core) {
		common.LogWarning(common.Initialization, "Lcore", lf.core, "of", lf.name,
			"is outside of the allowed CPU set, running unpinned")
		return
	}
	if err := SetAffinity(lf.core); err != nil {
		common.LogWarning(common.Initialization, "Can't pin", lf.name, "to core", lf.core, ":", err)
	}
}

// SetAffinity pins the calling thread to core. The goroutine must be locked
// to its thread.
func SetAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return common.WrapWithNFError(err, "sched_setaffinity to core "+strconv.Itoa(core), common.SetAffinityErr)
	}
	return nil
}

// StopFlag returns the shared stop flag.
func (scheduler *Scheduler) StopFlag() *atomic.Bool {
	return &scheduler.stop
}

// Stop raises the stop flag and waits for every function to return.
func (scheduler *Scheduler) Stop() {
	scheduler.stop.Store(true)
	scheduler.running.Wait()
	scheduler.started = false
}

// Schedule calls report every interval until ctx is done or the scheduler
// is stopped. Report gets the time since the previous call.
func (scheduler *Scheduler) Schedule(ctx context.Context, interval time.Duration, report func(elapsed time.Duration)) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if scheduler.stop.Load() {
				return
			}
			common.LogDebug(common.Debug, "System is using", len(scheduler.usedCores), "lcores now")
			report(now.Sub(last))
			last = now
		}
	}
}

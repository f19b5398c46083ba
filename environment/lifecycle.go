package environment

import (
	"time"

	"github.com/SharedCode/kvenv"
)

type errActive struct{}

func (errActive) Error() string { return "environment: live transactions remain" }

type errClosed struct{}

func (errClosed) Error() string { return "environment: closed" }

// Close implements spec.md §4.1's best-effort-graceful shutdown:
//  1. gc.Finish() outside any lock.
//  2. Under commit-lock, fail with Active if live transactions remain and CloseForcedly is off;
//     otherwise persist the GC utilization profile, close the log, stamp closedCause.
//  3. Drain all remaining deferred tasks unconditionally.
func (env *Environment) Close() error {
	env.monitor.Stop()
	env.gcol.Finish()

	env.commitMu.Lock()
	if env.closedCause != nil {
		env.commitMu.Unlock()
		return kvenv.NewError(kvenv.EnvironmentClosed, errClosed{})
	}
	if env.txns.Len() > 0 && !env.cfg.CloseForcedly {
		env.commitMu.Unlock()
		return kvenv.NewError(kvenv.Active, errActive{})
	}

	if err := env.gcol.SaveUtilizationProfile(env.ctx); err != nil {
		env.commitMu.Unlock()
		return err
	}
	if err := env.log.Close(); err != nil {
		env.commitMu.Unlock()
		return kvenv.NewError(kvenv.FileIOError, err)
	}

	env.stateMu.Lock()
	env.closedCause = errClosed{}
	env.stateMu.Unlock()

	env.commitMu.Unlock()

	env.deferred.DrainAll(env.ctx)
	_ = env.deferred.CloseWait(env.ctx, 5*time.Second)
	return nil
}

// Clear implements spec.md §4.1: suspend GC, assert no live transactions, truncate the log, run
// all deferred tasks, create a fresh MetaTree, reset the structure-id counter, resume GC.
func (env *Environment) Clear() error {
	env.gcol.Suspend()
	defer env.gcol.Resume()

	env.commitMu.Lock()
	defer env.commitMu.Unlock()
	env.metaMu.Lock()
	defer env.metaMu.Unlock()

	if env.txns.Len() > 0 {
		return kvenv.NewError(kvenv.Active, errActive{})
	}

	if err := env.log.Clear(env.ctx); err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}

	env.deferred.DrainAll(env.ctx)

	meta, err := env.metaStore.Load(env.ctx)
	if err != nil {
		return err
	}
	env.meta = meta
	env.structureCtr = 0
	return nil
}

package environment

import (
	"context"
	"testing"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/gc"
	"github.com/SharedCode/kvenv/tree"
)

func newTestEnv(t *testing.T, log kvenv.Log) *Environment {
	t.Helper()
	treeStore := tree.NewStore(log)
	collector := gc.New(nil, nil)
	env, err := Open(context.Background(), log, treeStore, collector, kvenv.DefaultEnvironmentConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return env
}

func mustOpenStore(t *testing.T, txn *Transaction, env *Environment, name string) *Store {
	t.Helper()
	s, found, err := env.OpenStore(txn, name, kvenv.StoreConfig{}, true)
	if err != nil {
		t.Fatalf("OpenStore(%s): %v", name, err)
	}
	if !found {
		t.Fatalf("OpenStore(%s): expected found=true", name)
	}
	return s
}

// Command kvenvd runs an Environment as a standalone daemon: it opens the configured log
// backend, publishes the admin introspection API, and blocks until an OS interrupt signal, the
// same shape the teacher's restapi/main sample app uses to wire a database plus a REST API.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/adminapi"
	"github.com/SharedCode/kvenv/environment"
	"github.com/SharedCode/kvenv/gc"
	"github.com/SharedCode/kvenv/tree"
	"github.com/SharedCode/kvenv/walog"
)

func main() {
	kvenv.ConfigureLogging()
	slog.Info("kvenvd starting", "version", kvenv.Version)

	dataPath := "/tmp/kvenv_data"
	if dp := os.Getenv("KVENV_DATA_PATH"); dp != "" {
		dataPath = dp
	}
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		log.Fatal(err)
	}

	cfg, err := kvenv.LoadEnvironmentConfig(dataPath)
	if err != nil {
		log.Fatal(err)
	}

	logBackend, err := openLogBackend(cfg)
	if err != nil {
		log.Fatal(err)
	}

	collector := gc.New(openPolicy(cfg), openS3Profile(cfg))
	collector.Start(context.Background())

	treeStore := tree.NewStore(logBackend)

	env, err := environment.Open(context.Background(), logBackend, treeStore, collector, cfg)
	if err != nil {
		log.Fatal(err)
	}
	env.Activate()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AdminListenAddr != "" {
		server := adminapi.NewServer(env, collector, cfg.AdminAuth)
		go func() {
			slog.Info("admin API listening", "addr", cfg.AdminListenAddr)
			if err := server.ListenAndServe(ctx, cfg.AdminListenAddr); err != nil {
				slog.Error("admin API stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("kvenvd shutting down")
	if err := env.Close(); err != nil {
		slog.Error("environment close failed", "error", err)
	}
}

// openLogBackend selects the Log implementation: a file log by default, or a Cassandra-backed log
// when KVENV_CASSANDRA_HOSTS is set. Either one is fronted by a Redis cache only when
// cfg.RedisAddr is set.
func openLogBackend(cfg kvenv.EnvironmentConfig) (kvenv.Log, error) {
	var backing kvenv.Log
	var err error
	if hosts := os.Getenv("KVENV_CASSANDRA_HOSTS"); hosts != "" {
		backing, err = walog.OpenCassandraLog(walog.CassandraLogConfig{
			Hosts:    strings.Split(hosts, ","),
			Keyspace: "kvenv",
			Table:    "log",
		})
	} else {
		backing, err = walog.OpenFileLog(walog.FileLogConfig{
			Path:       cfg.LogDir + "/kvenv.log",
			UseErasure: os.Getenv("KVENV_ERASURE") == "1",
		})
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return backing, nil
	}
	return walog.NewCachedLog(backing, walog.CachedLogConfig{RedisAddr: cfg.RedisAddr}), nil
}

func openPolicy(cfg kvenv.EnvironmentConfig) *gc.Policy {
	if cfg.GCPolicyExpr == "" {
		return nil
	}
	policy, err := gc.NewPolicy(cfg.GCPolicyExpr)
	if err != nil {
		slog.Error("gc policy expression rejected, disabling GC filtering", "error", err)
		return nil
	}
	return policy
}

func openS3Profile(cfg kvenv.EnvironmentConfig) *gc.S3Profile {
	if cfg.S3UtilizationProfileBucket == "" {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		slog.Error("aws config load failed, disabling S3 utilization profile", "error", err)
		return nil
	}
	return gc.NewS3Profile(awsCfg, cfg.S3UtilizationProfileBucket, "")
}

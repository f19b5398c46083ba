package kvenv

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// InternerStrategy selects the string-interning strategy used by the bindings layer when
// decoding store names and other byte-iterable-encoded strings (spec.md §6, §9 design note 1).
//
// The original source selected this via a process-wide system property read once at init time;
// here it is always an explicit constructor argument, never a hidden global switch.
type InternerStrategy string

const (
	// InternerNone performs no interning; every decode allocates a fresh string.
	InternerNone InternerStrategy = "none"
	// InternerJava mimics a simple unbounded map-based intern table.
	InternerJava InternerStrategy = "java"
	// InternerXodus uses a bounded MRU-evicting intern table sized by InternerCacheSize.
	InternerXodus InternerStrategy = "xodus"
)

// AdminAuthConfig configures the optional bearer-token gate on the admin introspection API.
type AdminAuthConfig struct {
	// OktaIssuer, when non-empty, enables JWT verification of admin API requests against this
	// Okta authorization server issuer URL.
	OktaIssuer string
	// OktaAudience is the expected token audience claim.
	OktaAudience string
	// OktaClientID is the expected token client ID claim.
	OktaClientID string
}

// EnvironmentConfig carries the tunables the Environment core consumes, loaded from
// exodus.properties alongside the log location (spec.md §6) plus fields set directly by the
// embedding application.
type EnvironmentConfig struct {
	// LogDir is the directory holding the append-only log file.
	LogDir string
	// MonitorTxnsTimeout is envMonitorTxnsTimeout: 0 disables the StuckTransactionMonitor.
	MonitorTxnsTimeout time.Duration
	// CloseForcedly is envCloseForcedly: allows Close to proceed with live transactions.
	CloseForcedly bool
	// TreeMaxPageSize is treeMaxPageSize: passed to the tree's balance policy.
	TreeMaxPageSize int
	// Interner is bindings.interner: selects the string-interning strategy.
	Interner InternerStrategy
	// InternerCacheSize bounds the xodus interner's MRU table when Interner == InternerXodus.
	InternerCacheSize int

	// AdminListenAddr, when non-empty, starts the admin introspection HTTP API on this address.
	AdminListenAddr string
	// AdminAuth optionally gates the admin API behind Okta JWT verification.
	AdminAuth *AdminAuthConfig

	// RedisAddr, when non-empty, enables a Redis-backed L2 cache in front of the log's segment
	// reads (cacheHitRate, spec.md §6).
	RedisAddr string

	// GCPolicyExpr is an optional CEL expression further restricting which expired loggables
	// the GC treats as eligible for reclamation (see SPEC_FULL.md §8).
	GCPolicyExpr string

	// S3UtilizationProfileBucket, when non-empty, persists the GC's utilization profile to this
	// S3 bucket. When empty, the profile is not persisted anywhere.
	S3UtilizationProfileBucket string
}

// DefaultEnvironmentConfig returns an EnvironmentConfig with the spec's documented defaults:
// monitor disabled, close-forcibly disabled, a tree page size of 128, no interning.
func DefaultEnvironmentConfig(logDir string) EnvironmentConfig {
	return EnvironmentConfig{
		LogDir:            logDir,
		MonitorTxnsTimeout: 0,
		CloseForcedly:      false,
		TreeMaxPageSize:    128,
		Interner:           InternerNone,
		InternerCacheSize:  4096,
	}
}

// LoadEnvironmentConfig loads exodus.properties from logDir (if present) over top of
// DefaultEnvironmentConfig(logDir), and returns the merged config. A missing properties file is
// not an error — the defaults apply.
func LoadEnvironmentConfig(logDir string) (EnvironmentConfig, error) {
	cfg := DefaultEnvironmentConfig(logDir)
	path := filepath.Join(logDir, "exodus.properties")
	props, err := loadProperties(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, NewError(FileIOError, err)
	}
	applyProperties(&cfg, props)
	return cfg, nil
}

// loadProperties parses a minimal Java-style .properties file: "key=value" or "key: value"
// lines, '#'/'!' comments, blank lines ignored. No pack example ships a .properties reader (see
// DESIGN.md), so this stays on the standard library rather than reaching for an ecosystem
// library that isn't grounded in the corpus.
func loadProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		sep := strings.IndexAny(line, "=:")
		if sep < 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		val := strings.TrimSpace(line[sep+1:])
		if key != "" {
			props[key] = val
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return props, nil
}

func applyProperties(cfg *EnvironmentConfig, props map[string]string) {
	if v, ok := props["envMonitorTxnsTimeout"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MonitorTxnsTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := props["envCloseForcedly"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CloseForcedly = b
		}
	}
	if v, ok := props["treeMaxPageSize"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TreeMaxPageSize = n
		}
	}
	if v, ok := props["bindings.interner"]; ok {
		switch InternerStrategy(v) {
		case InternerJava, InternerXodus, InternerNone:
			cfg.Interner = InternerStrategy(v)
		}
	}
}

// StoreConfig controls how openStore resolves an existing or new store (spec.md §4.1).
type StoreConfig struct {
	// HasDuplicates allows more than one item per key.
	HasDuplicates bool
	// KeyPrefixing enables Patricia-style key-prefix compression.
	KeyPrefixing bool
	// UseExisting requires the store to already exist; a missing store fails with NoSuchStore.
	UseExisting bool
}

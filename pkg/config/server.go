package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig configures a single listening adapter instance.
type ServerConfig struct {
	Listen               []ListenAddr    `json:"listen"`
	Database             string          `json:"database"`
	Users                []UserConfig    `json:"users"`
	Backend              BackendConfig   `json:"backend"`
	Policy               AdapterPolicy   `json:"policy"`
	TrackExtraParameters map[string]bool `json:"track_extra_parameters,omitempty"`
}

// UserConfig configures authentication credentials for one frontend user.
type UserConfig struct {
	Username SecretRef `json:"username"`
	Password SecretRef `json:"password"`
}

// BackendConfig configures the Postgres-wire-compatible backend this
// adapter proxies DML and DDL to once a statement can't be served
// locally.
type BackendConfig struct {
	Host                     string              `json:"host"`
	Port                     uint16              `json:"port"`
	Database                 string              `json:"database"`
	MaxConnections           int32               `json:"max_connections"`
	TLSMode                  string              `json:"tls_mode,omitempty"` // "disable", "require"
	DefaultStartupParameters PgStartupParameters `json:"default_startup_parameters,omitempty"`
}

// PoolConfig builds a pgxpool.Config skeleton for this backend. Callers
// still need to set ConnConfig.User/Password before use; this only fills
// in the parts that don't depend on a specific frontend user.
func (b BackendConfig) PoolConfig() (*pgxpool.Config, error) {
	if b.Host == "" {
		return nil, fmt.Errorf("backend: host is required")
	}
	port := b.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("postgres://%s:%d/%s", b.Host, port, b.Database)
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid pool config: %w", err)
	}
	if b.MaxConnections > 0 {
		cfg.MaxConns = b.MaxConnections
	}
	switch b.TLSMode {
	case "", "disable":
		cfg.ConnConfig.TLSConfig = nil
	case "require":
		// TLSConfig left for callers that need mTLS to fill in; a nil
		// value here with tls_mode=require is a config error callers
		// should catch before dialing.
	}
	return cfg, nil
}

// AdapterPolicy controls behavior that has no PostgreSQL-wire analog:
// how aggressively statements are batched before dispatch, and how COPY
// mutation accounting is enforced.
type AdapterPolicy struct {
	// MaxBatchStatements caps how many pending Bind/Execute pairs are
	// coalesced into one backend dispatch before Sync forces a flush.
	MaxBatchStatements int `json:"max_batch_statements,omitempty"`

	// CopyMutationLimit is the default mutation ceiling (rows times
	// columns touched) enforced during atomic-mode COPY, unless a
	// session overrides it.
	CopyMutationLimit int64 `json:"copy_mutation_limit,omitempty"`

	// AtomicCopyDefault selects whether COPY IN commits atomically or
	// in row-group partitions when a session does not say otherwise.
	AtomicCopyDefault bool `json:"atomic_copy_default"`

	// IdleInTransactionTimeoutMillis closes sessions left idle inside
	// an open transaction past this duration. Zero disables the timeout.
	IdleInTransactionTimeoutMillis int64 `json:"idle_in_transaction_timeout_ms,omitempty"`
}

// PgStartupParameters is a map of PostgreSQL startup parameters that
// preserves insertion order (i.e., the order from the JSON file).
type PgStartupParameters struct {
	keys   []string
	values map[string]string
}

// All returns an iterator over parameters in insertion order.
func (p *PgStartupParameters) All() func(yield func(string, string) bool) {
	return func(yield func(string, string) bool) {
		for _, k := range p.keys {
			if !yield(k, p.values[k]) {
				return
			}
		}
	}
}

// UnmarshalJSON parses a JSON object, preserving key order from the file.
func (p *PgStartupParameters) UnmarshalJSON(data []byte) error {
	p.keys = nil
	p.values = make(map[string]string)

	dec := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("pg startup parameters: expected object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}

		p.keys = append(p.keys, key)
		p.values[key] = val
	}
	return nil
}

// MarshalJSON serializes parameters in insertion order.
func (p PgStartupParameters) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		keyBytes, _ := json.Marshal(k)
		valBytes, _ := json.Marshal(p.values[k])
		b.Write(keyBytes)
		b.WriteByte(':')
		b.Write(valBytes)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// ListenAddr is a network address suitable for net.Listen. It normalizes
// JSON input formats like "5432", ":5432", or "127.0.0.1:5432" into the
// "host:port" format expected by Go's net package.
type ListenAddr string

func (l *ListenAddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ListenAddr(normalizeListenAddr(s))
	return nil
}

func (l ListenAddr) String() string {
	return string(l)
}

func normalizeListenAddr(s string) string {
	if !strings.Contains(s, ":") {
		return ":" + s
	}
	return s
}

// Package pgxbackend implements the backend.Driver contract against a
// Postgres-wire-compatible service using pgx/v5's connection pool. It is
// one concrete backend among potentially several; the session engine
// only ever sees it through the backend.Driver/backend.Tx interfaces.
package pgxbackend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/sqlgateway/pgadapter/pkg/backend"
	"github.com/sqlgateway/pgadapter/pkg/config"
)

// Pool manages connection pools to a backend server, one pool per
// configured frontend user, under a single global connection ceiling.
// It is shared across all sessions authenticated as one of its users and
// provides fair scheduling plus connection stealing when at capacity.
type Pool struct {
	cfg     config.BackendConfig
	secrets *config.SecretCache

	mu        sync.RWMutex
	userPools map[config.UserConfig]*pgxpool.Pool

	connMgr *connManager[config.UserConfig]
}

// NewPool creates a Pool and eagerly opens a pgxpool.Pool for each user in
// users, so that MinIdleConns-style warm-up happens once at startup
// rather than on a session's first query.
func NewPool(ctx context.Context, cfg config.BackendConfig, users []config.UserConfig, secrets *config.SecretCache) (*Pool, error) {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 64
	}

	p := &Pool{
		cfg:       cfg,
		secrets:   secrets,
		userPools: make(map[config.UserConfig]*pgxpool.Pool),
		connMgr:   newConnManager(maxConns, users),
	}
	p.connMgr.setStealFunc(p.tryStealIdleConnection)

	g := new(errgroup.Group)
	var mu sync.Mutex
	for _, user := range users {
		user := user
		g.Go(func() error {
			pool, err := p.createPool(ctx, user)
			if err != nil {
				return fmt.Errorf("pool for user: %w", err)
			}
			mu.Lock()
			p.userPools[user] = pool
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewSessionDriver returns a backend.Driver scoped to a single frontend
// session authenticated as user. Every Begin call on the returned Driver
// draws a connection from this Pool's shared capacity.
func (p *Pool) NewSessionDriver(user config.UserConfig) (backend.Driver, error) {
	pool, err := p.getPool(user)
	if err != nil {
		return nil, err
	}
	return &sessionDriver{pool: p, connPool: pool, user: user, params: make(map[string]string)}, nil
}

func (p *Pool) getPool(user config.UserConfig) (*pgxpool.Pool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pool, ok := p.userPools[user]
	if !ok {
		return nil, fmt.Errorf("no pool for user (this should not happen)")
	}
	return pool, nil
}

func (p *Pool) createPool(ctx context.Context, user config.UserConfig) (*pgxpool.Pool, error) {
	poolCfg, err := p.poolConfigForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return pool, nil
}

func (p *Pool) poolConfigForUser(ctx context.Context, user config.UserConfig) (*pgxpool.Config, error) {
	cfg, err := p.cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	username, err := p.secrets.Get(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to get username: %w", err)
	}
	password, err := p.secrets.Get(ctx, user.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to get password: %w", err)
	}

	cfg.ConnConfig.User = username
	cfg.ConnConfig.Password = password

	p.installConnectionCallbacks(cfg)

	return cfg, nil
}

// installConnectionCallbacks wires BeforeConnect/BeforeClose so that the
// global connection ceiling is enforced across every per-user pool, not
// just within one pool's own MaxConns.
func (p *Pool) installConnectionCallbacks(cfg *pgxpool.Config) {
	existingBeforeConnect := cfg.BeforeConnect
	cfg.BeforeConnect = func(ctx context.Context, connCfg *pgx.ConnConfig) error {
		if !p.connMgr.tryReserveDBConn() {
			return backend.ErrConnectionLimitReached
		}
		if existingBeforeConnect != nil {
			if err := existingBeforeConnect(ctx, connCfg); err != nil {
				p.connMgr.releaseDBConn()
				return err
			}
		}
		return nil
	}

	existingBeforeClose := cfg.BeforeClose
	cfg.BeforeClose = func(conn *pgx.Conn) {
		p.connMgr.releaseDBConn()
		if existingBeforeClose != nil {
			existingBeforeClose(conn)
		}
	}
}

// acquire pulls a connection from user's pool, respecting the global
// connection limit and fair scheduling, and stealing an idle connection
// from another user's pool when at capacity.
func (p *Pool) acquire(ctx context.Context, user config.UserConfig) (*pgxpool.Conn, error) {
	pool, err := p.getPool(user)
	if err != nil {
		return nil, err
	}

	for {
		if err := p.connMgr.waitForTurn(ctx, user); err != nil {
			return nil, err
		}

		conn, err := pool.Acquire(ctx)
		if err == nil {
			return conn, nil
		}

		if errors.Is(err, backend.ErrConnectionLimitReached) {
			if p.tryStealIdleConnection(user) {
				continue
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
}

func (p *Pool) tryStealIdleConnection(exclude config.UserConfig) bool {
	var candidates []*pgxpool.Pool

	p.mu.RLock()
	for user, pool := range p.userPools {
		if user == exclude {
			continue
		}
		if pool.Stat().IdleConns() > 0 {
			candidates = append(candidates, pool)
		}
	}
	p.mu.RUnlock()

	for _, pool := range candidates {
		if p.tryHijackIdleConnection(pool) {
			return true
		}
	}
	return false
}

func (p *Pool) tryHijackIdleConnection(pool *pgxpool.Pool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false
	}

	pgConn := conn.Hijack()
	_ = pgConn.Close(context.Background())
	return true
}

// Stats returns statistics about the pool's connection manager.
func (p *Pool) Stats() connManagerStats {
	return p.connMgr.stats()
}

// Close closes every per-user pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pool := range p.userPools {
		pool.Close()
	}
	p.userPools = make(map[config.UserConfig]*pgxpool.Pool)
}

// SPDX-FileCopyrightText: Copyright 2026 mcpgate authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	clientsFile       = "clients.json"
	refreshTokensFile = "refresh_tokens.json"
	lockFile          = ".lock"

	// defaultSweepInterval is how often the background sweeper prunes
	// expired records.
	defaultSweepInterval = 60 * time.Second

	// lockTimeout is the maximum time to wait for the store directory lock.
	lockTimeout = 1 * time.Second
)

// usedCode remembers a redeemed authorization code together with the tokens
// its redemption produced, so that a replayed code can invalidate them.
type usedCode struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// Store owns every credential record. Clients and refresh tokens are written
// through to JSON files in the store directory; codes, access tokens and
// pending authorizations live only in memory. A single mutex guards all maps;
// operations are short, so contention is negligible at expected token rates.
//
// The store directory is protected by a file lock for the lifetime of the
// store, enforcing the single-writer contract across processes.
type Store struct {
	mu     sync.Mutex
	dir    string
	lock   *flock.Flock
	logger *slog.Logger

	clients       map[string]Client
	codes         map[string]AuthorizationCode
	accessTokens  map[string]AccessToken
	refreshTokens map[string]RefreshToken
	pending       map[string]PendingAuthorization
	usedCodes     map[string]usedCode

	// clientsDirty / refreshDirty are set when a disk write fails so the
	// sweeper can re-attempt persistence (availability over durability).
	clientsDirty bool
	refreshDirty bool

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithSweepInterval overrides the background sweep interval.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.sweepInterval = interval
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore opens (or creates) the store directory, acquires its lock,
// hydrates clients and refresh tokens from disk and starts the sweeper.
// Missing or malformed JSON files are logged and treated as empty; records
// whose expiry has passed are dropped silently on load.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &Store{
		dir:           dir,
		lock:          flock.New(filepath.Join(dir, lockFile)),
		logger:        slog.Default(),
		clients:       make(map[string]Client),
		codes:         make(map[string]AuthorizationCode),
		accessTokens:  make(map[string]AccessToken),
		refreshTokens: make(map[string]RefreshToken),
		pending:       make(map[string]PendingAuthorization),
		usedCodes:     make(map[string]usedCode),
		sweepInterval: defaultSweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	lockCtx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil || !locked {
		return nil, fmt.Errorf("failed to lock storage directory %s (already in use?): %w", dir, err)
	}

	s.loadClients()
	s.loadRefreshTokens()

	s.logger.Info("credential store initialized",
		slog.String("dir", dir),
		slog.Int("clients", len(s.clients)),
		slog.Int("refresh_tokens", len(s.refreshTokens)),
	)

	go s.sweepLoop()

	return s, nil
}

// Close flushes the durable records, stops the sweeper and releases the
// directory lock.
func (s *Store) Close() error {
	close(s.stopSweep)
	<-s.sweepDone

	s.mu.Lock()
	errClients := s.persistClientsLocked()
	errRefresh := s.persistRefreshTokensLocked()
	s.mu.Unlock()

	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release storage lock: %w", err)
	}
	return errors.Join(errClients, errRefresh)
}

// RegisterClient persists a new client registration.
// Returns ErrClientExists when the client ID is already taken.
func (s *Store) RegisterClient(client Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ClientID]; ok {
		return fmt.Errorf("%w: %s", ErrClientExists, client.ClientID)
	}
	s.clients[client.ClientID] = client.clone()

	if err := s.persistClientsLocked(); err != nil {
		// Keep the in-memory registration; the sweeper re-attempts the write.
		s.logger.Error("failed to persist clients, keeping in-memory state",
			slog.String("error", err.Error()))
	}
	return nil
}

// GetClient returns the client registration for the given ID.
func (s *Store) GetClient(clientID string) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		return Client{}, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	return client.clone(), nil
}

// ClientCount returns the number of registered clients.
func (s *Store) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// AddCode stores an authorization code.
func (s *Store) AddCode(code AuthorizationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = code.clone()
}

// ConsumeCode removes and returns the authorization code, atomically. At most
// one of any number of concurrent redemptions succeeds. A code that was
// already redeemed returns ErrCodeReplayed after invalidating the tokens
// issued from the first redemption.
func (s *Store) ConsumeCode(code string) (AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if used, ok := s.usedCodes[code]; ok {
		s.revokeIssuedLocked(used)
		delete(s.usedCodes, code)
		s.logger.Warn("authorization code replay detected, revoking issued tokens")
		return AuthorizationCode{}, ErrCodeReplayed
	}

	rec, ok := s.codes[code]
	if !ok {
		return AuthorizationCode{}, fmt.Errorf("%w: authorization code", ErrNotFound)
	}
	delete(s.codes, code)
	if rec.IsExpired() {
		return AuthorizationCode{}, fmt.Errorf("%w: authorization code", ErrExpired)
	}
	return rec.clone(), nil
}

// MarkCodeUsed records which tokens a redeemed code produced so a later
// replay of the same code can invalidate them.
func (s *Store) MarkCodeUsed(code AuthorizationCode, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usedCodes[code.Code] = usedCode{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    code.ExpiresAt,
	}
}

// AddAccessToken stores an access token.
func (s *Store) AddAccessToken(token AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[token.Token] = token.clone()
}

// LoadAccessToken returns the access token record. Expired tokens are pruned
// on lookup and reported as expired.
func (s *Store) LoadAccessToken(token string) (AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accessTokens[token]
	if !ok {
		return AccessToken{}, fmt.Errorf("%w: access token", ErrNotFound)
	}
	if rec.IsExpired() {
		delete(s.accessTokens, token)
		return AccessToken{}, fmt.Errorf("%w: access token", ErrExpired)
	}
	return rec.clone(), nil
}

// AddRefreshToken persists a refresh token.
func (s *Store) AddRefreshToken(token RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[token.Token] = token.clone()
	if err := s.persistRefreshTokensLocked(); err != nil {
		s.logger.Error("failed to persist refresh tokens, keeping in-memory state",
			slog.String("error", err.Error()))
	}
}

// GetRefreshToken returns the refresh token record without consuming it.
// Expired tokens are pruned on lookup and reported as expired.
func (s *Store) GetRefreshToken(token string) (RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refreshTokens[token]
	if !ok {
		return RefreshToken{}, fmt.Errorf("%w: refresh token", ErrNotFound)
	}
	if rec.IsExpired() {
		delete(s.refreshTokens, token)
		if err := s.persistRefreshTokensLocked(); err != nil {
			s.logger.Error("failed to persist refresh tokens",
				slog.String("error", err.Error()))
		}
		return RefreshToken{}, fmt.Errorf("%w: refresh token", ErrExpired)
	}
	return rec.clone(), nil
}

// RotateRefreshToken atomically replaces old with next: no reader can observe
// both as valid, and two concurrent rotations of the same token produce
// exactly one success.
func (s *Store) RotateRefreshToken(old string, next RefreshToken) (RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refreshTokens[old]
	if !ok {
		return RefreshToken{}, fmt.Errorf("%w: refresh token", ErrNotFound)
	}
	delete(s.refreshTokens, old)
	if rec.IsExpired() {
		if err := s.persistRefreshTokensLocked(); err != nil {
			s.logger.Error("failed to persist refresh tokens",
				slog.String("error", err.Error()))
		}
		return RefreshToken{}, fmt.Errorf("%w: refresh token", ErrExpired)
	}

	s.refreshTokens[next.Token] = next.clone()
	if err := s.persistRefreshTokensLocked(); err != nil {
		s.logger.Error("failed to persist refresh tokens, keeping in-memory state",
			slog.String("error", err.Error()))
	}
	return rec.clone(), nil
}

// Revoke removes the token, whether it is an access or a refresh token.
// Revoking a refresh token also removes the client's access tokens, matching
// RFC 7009's recommendation to invalidate related tokens. Revocation of an
// unknown token is a no-op.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[token]; ok {
		delete(s.accessTokens, token)
		return
	}

	if rec, ok := s.refreshTokens[token]; ok {
		for at, atRec := range s.accessTokens {
			if atRec.ClientID == rec.ClientID {
				delete(s.accessTokens, at)
			}
		}
		delete(s.refreshTokens, token)
		if err := s.persistRefreshTokensLocked(); err != nil {
			s.logger.Error("failed to persist refresh tokens",
				slog.String("error", err.Error()))
		}
	}
}

// revokeIssuedLocked invalidates the tokens recorded against a redeemed code.
func (s *Store) revokeIssuedLocked(used usedCode) {
	delete(s.accessTokens, used.accessToken)
	if _, ok := s.refreshTokens[used.refreshToken]; ok {
		delete(s.refreshTokens, used.refreshToken)
		if err := s.persistRefreshTokensLocked(); err != nil {
			s.logger.Error("failed to persist refresh tokens",
				slog.String("error", err.Error()))
		}
	}
}

// PutPending stores a pending authorization under the given correlation key.
func (s *Store) PutPending(key string, pending PendingAuthorization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = pending.clone()
}

// GetPending returns the pending authorization without consuming it. Used by
// the consent page, which renders the request but must not destroy it.
func (s *Store) GetPending(key string) (PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.pending[key]
	if !ok {
		return PendingAuthorization{}, fmt.Errorf("%w: pending authorization", ErrNotFound)
	}
	if rec.IsExpired() {
		delete(s.pending, key)
		return PendingAuthorization{}, fmt.Errorf("%w: pending authorization", ErrExpired)
	}
	return rec.clone(), nil
}

// TakePending removes and returns the pending authorization, atomically.
// The caller is the sole consumer; a duplicate callback for the same key
// fails with ErrNotFound.
func (s *Store) TakePending(key string) (PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.pending[key]
	if !ok {
		return PendingAuthorization{}, fmt.Errorf("%w: pending authorization", ErrNotFound)
	}
	delete(s.pending, key)
	if rec.IsExpired() {
		return PendingAuthorization{}, fmt.Errorf("%w: pending authorization", ErrExpired)
	}
	return rec.clone(), nil
}

// HasToken reports whether the given string is already in use as an access
// or refresh token. Used for the (negligible) collision retry when minting.
func (s *Store) HasToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, access := s.accessTokens[token]
	_, refresh := s.refreshTokens[token]
	return access || refresh
}

// Stats returns current record counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Clients:               len(s.clients),
		PendingAuthorizations: len(s.pending),
		AuthorizationCodes:    len(s.codes),
		AccessTokens:          len(s.accessTokens),
		RefreshTokens:         len(s.refreshTokens),
	}
}

// Sweep removes expired records from memory and, for refresh tokens, from
// disk. It also re-attempts any persistence that previously failed.
func (s *Store) Sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for code, rec := range s.codes {
		if now.After(rec.ExpiresAt) {
			delete(s.codes, code)
		}
	}
	for code, used := range s.usedCodes {
		if now.After(used.expiresAt) {
			delete(s.usedCodes, code)
		}
	}
	for token, rec := range s.accessTokens {
		if now.After(rec.ExpiresAt) {
			delete(s.accessTokens, token)
		}
	}
	for key, rec := range s.pending {
		if now.After(rec.ExpiresAt) {
			delete(s.pending, key)
		}
	}

	refreshChanged := false
	for token, rec := range s.refreshTokens {
		if rec.IsExpired() {
			delete(s.refreshTokens, token)
			refreshChanged = true
		}
	}

	if refreshChanged || s.refreshDirty {
		if err := s.persistRefreshTokensLocked(); err != nil {
			s.logger.Error("sweeper failed to persist refresh tokens",
				slog.String("error", err.Error()))
		}
	}
	if s.clientsDirty {
		if err := s.persistClientsLocked(); err != nil {
			s.logger.Error("sweeper failed to persist clients",
				slog.String("error", err.Error()))
		}
	}
}

func (s *Store) sweepLoop() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopSweep:
			return
		}
	}
}

// loadClients hydrates client registrations from clients.json.
func (s *Store) loadClients() {
	var records map[string]Client
	if !s.loadJSONFile(clientsFile, &records) {
		return
	}
	for id, client := range records {
		s.clients[id] = client
	}
	s.logger.Debug("loaded clients from disk", slog.Int("count", len(s.clients)))
}

// loadRefreshTokens hydrates refresh tokens from refresh_tokens.json,
// dropping entries that expired while the server was down.
func (s *Store) loadRefreshTokens() {
	var records map[string]RefreshToken
	if !s.loadJSONFile(refreshTokensFile, &records) {
		return
	}

	expired := 0
	for token, rec := range records {
		if rec.IsExpired() {
			expired++
			continue
		}
		s.refreshTokens[token] = rec
	}
	s.logger.Debug("loaded refresh tokens from disk",
		slog.Int("count", len(s.refreshTokens)),
		slog.Int("expired_skipped", expired),
	)
}

// loadJSONFile reads and unmarshals a store file. A missing file is normal;
// a malformed one is logged and treated as empty (it is rewritten on the
// first change).
func (s *Store) loadJSONFile(name string, out any) bool {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read store file, treating as empty",
				slog.String("file", name),
				slog.String("error", err.Error()))
		}
		return false
	}
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("malformed store file, treating as empty",
			slog.String("file", name),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *Store) persistClientsLocked() error {
	err := s.writeJSONFile(clientsFile, s.clients)
	s.clientsDirty = err != nil
	return err
}

func (s *Store) persistRefreshTokensLocked() error {
	// Only live tokens reach disk.
	live := make(map[string]RefreshToken, len(s.refreshTokens))
	for token, rec := range s.refreshTokens {
		if !rec.IsExpired() {
			live[token] = rec
		}
	}
	err := s.writeJSONFile(refreshTokensFile, live)
	s.refreshDirty = err != nil
	return err
}

// writeJSONFile writes to a temporary file and renames it into place so a
// crash mid-write never leaves a torn file.
func (s *Store) writeJSONFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

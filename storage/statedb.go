package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated by registerPrefix() below.
var statePrefixes []string

var (
	prefixAccount   = registerPrefix("acct:")
	prefixChallenge = registerPrefix("chal:")
	prefixToken     = registerPrefix("tok:")
	prefixTokenBal  = registerPrefix("tokbal:")
	prefixAllowance = registerPrefix("tokallow:")
	prefixRole      = registerPrefix("role:")
	prefixMeta      = registerPrefix("meta:")
)

var (
	keyChallengeCount = prefixMeta + "challenge_count"
	keyProviderVault  = prefixMeta + "provider_vault"
	keyAdminState     = prefixMeta + "admin"
)

// ErrReadOnlyState is returned when a committed view is asked to snapshot
// or commit.
var ErrReadOnlyState = errors.New("storage: state view is read-only")

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation. It is safe
// for concurrent readers alongside the single block-producing writer.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
	readOnly  bool
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Committed returns a read-only view of the persisted state over the same
// DB. The view never sees s's write buffer, so readers observe only what a
// Commit has flushed. Writes to the view are dropped and Snapshot/Commit
// fail with ErrReadOnlyState.
func (s *StateDB) Committed() *StateDB {
	v := NewStateDB(s.db)
	v.readOnly = true
	return v
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	if s.readOnly {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	if s.readOnly {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// getUint reads a decimal counter; a missing key reads as zero.
func (s *StateDB) getUint(key string) (uint64, error) {
	data, err := s.get(key)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return n, nil
}

// setUint stores n, deleting the key when n is zero so empty balances do
// not accumulate in the state root.
func (s *StateDB) setUint(key string, n uint64) {
	if n == 0 {
		s.del(key)
		return
	}
	s.set(key, []byte(strconv.FormatUint(n, 10)))
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Challenge ----

func (s *StateDB) GetChallenge(id string) (*core.Challenge, error) {
	var c core.Challenge
	if err := s.getJSON(prefixChallenge+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *StateDB) SetChallenge(c *core.Challenge) error {
	return s.setJSON(prefixChallenge+c.ID, c)
}

func (s *StateDB) GetChallengeCount() (uint64, error) {
	return s.getUint(keyChallengeCount)
}

func (s *StateDB) SetChallengeCount(n uint64) error {
	s.setUint(keyChallengeCount, n)
	return nil
}

func (s *StateDB) GetProviderVault() (string, error) {
	data, err := s.get(keyProviderVault)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetProviderVault(addr string) error {
	if addr == "" {
		s.del(keyProviderVault)
		return nil
	}
	s.set(keyProviderVault, []byte(addr))
	return nil
}

// ---- Token ----

func (s *StateDB) GetToken(id string) (*core.Token, error) {
	var t core.Token
	if err := s.getJSON(prefixToken+id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetToken(t *core.Token) error {
	return s.setJSON(prefixToken+t.ID, t)
}

func (s *StateDB) GetTokenBalance(token, owner string) (uint64, error) {
	return s.getUint(prefixTokenBal + token + ":" + owner)
}

func (s *StateDB) SetTokenBalance(token, owner string, amount uint64) error {
	s.setUint(prefixTokenBal+token+":"+owner, amount)
	return nil
}

func (s *StateDB) GetTokenAllowance(token, owner, spender string) (uint64, error) {
	return s.getUint(prefixAllowance + token + ":" + owner + ":" + spender)
}

func (s *StateDB) SetTokenAllowance(token, owner, spender string, amount uint64) error {
	s.setUint(prefixAllowance+token+":"+owner+":"+spender, amount)
	return nil
}

// ---- Roles ----

func (s *StateDB) HasRole(role, account string) (bool, error) {
	_, err := s.get(prefixRole + role + ":" + account)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) SetRole(role, account string, granted bool) error {
	key := prefixRole + role + ":" + account
	if granted {
		s.set(key, []byte{1})
	} else {
		s.del(key)
	}
	return nil
}

func (s *StateDB) GetAdminState() (*core.AdminState, error) {
	var st core.AdminState
	err := s.getJSON(keyAdminState, &st)
	if errors.Is(err, core.ErrNotFound) {
		return &core.AdminState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *StateDB) SetAdminState(st *core.AdminState) error {
	return s.setJSON(keyAdminState, st)
}

// ---- Snapshot / Rollback / Commit ----

func copyBuffers(dirty map[string][]byte, deleted map[string]bool) stateSnapshot {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(dirty)),
		deleted: make(map[string]bool, len(deleted)),
	}
	for k, v := range dirty {
		snap.dirty[k] = bytes.Clone(v)
	}
	for k, v := range deleted {
		snap.deleted[k] = v
	}
	return snap
}

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	if s.readOnly {
		return 0, ErrReadOnlyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, copyBuffers(s.dirty, s.deleted))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it together with every later one.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	restored := copyBuffers(s.snapshots[id].dirty, s.snapshots[id].deleted)
	s.dirty = restored.dirty
	s.deleted = restored.deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state:
// persisted entries under the known prefixes merged with the write buffer,
// sorted by key and length-prefix encoded. It does not modify state.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = bytes.Clone(it.Value())
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit flushes the write buffer through a single batch and clears it.
func (s *StateDB) Commit() error {
	if s.readOnly {
		return ErrReadOnlyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}

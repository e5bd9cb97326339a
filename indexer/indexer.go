// Package indexer maintains secondary indexes over committed blocks so
// clients can look up challenges by player, mediator or correlation id
// without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tolelom/tolchallenge/core"
	"github.com/tolelom/tolchallenge/events"
	"github.com/tolelom/tolchallenge/storage"
)

const (
	prefixPlayerChallenges   = "idx:player:challenge:"
	prefixMediatorChallenges = "idx:mediator:challenge:"
	prefixCorrelation        = "idx:correlation:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db  storage.DB
	log *slog.Logger
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Indexer{db: db, log: logger.With("component", "indexer")}
	emitter.Subscribe(events.EventChallengeCreated, idx.onCreated)
	emitter.Subscribe(events.EventChallengeJoined, idx.onJoined)
	emitter.Subscribe(events.EventChallengeLeft, idx.onLeft)
	return idx
}

// GetChallengesByPlayer returns the ids of challenges the player currently
// holds a seat in or held one in when the challenge closed.
func (idx *Indexer) GetChallengesByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerChallenges + player)
}

// GetChallengesByMediator returns the ids of challenges mediated by addr.
func (idx *Indexer) GetChallengesByMediator(addr string) ([]string, error) {
	return idx.getList(prefixMediatorChallenges + addr)
}

// GetChallengeByCorrelation returns the id of the challenge created with
// correlation id cid.
func (idx *Indexer) GetChallengeByCorrelation(cid string) (string, error) {
	data, err := idx.db.Get([]byte(prefixCorrelation + cid))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ---- event handlers ----

func (idx *Indexer) onCreated(ev events.Event) {
	id, _ := ev.Data["challenge_id"].(string)
	mediator, _ := ev.Data["mediator"].(string)
	cid, _ := ev.Data["correlation_id"].(string)
	if id == "" {
		return
	}
	if mediator != "" {
		idx.check(idx.addToList(prefixMediatorChallenges+mediator, id), ev)
	}
	if cid != "" {
		idx.check(idx.db.Set([]byte(prefixCorrelation+cid), []byte(id)), ev)
	}
}

func (idx *Indexer) onJoined(ev events.Event) {
	id, _ := ev.Data["challenge_id"].(string)
	player, _ := ev.Data["player"].(string)
	if id == "" || player == "" {
		return
	}
	idx.check(idx.addToList(prefixPlayerChallenges+player, id), ev)
}

func (idx *Indexer) onLeft(ev events.Event) {
	id, _ := ev.Data["challenge_id"].(string)
	player, _ := ev.Data["player"].(string)
	if id == "" || player == "" {
		return
	}
	idx.check(idx.removeFromList(prefixPlayerChallenges+player, id), ev)
}

func (idx *Indexer) check(err error, ev events.Event) {
	if err != nil {
		idx.log.Warn("index update failed", "event", ev.Type, "tx", ev.TxID, "err", err)
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	if slices.Contains(ids, value) {
		return nil
	}
	return idx.putList(key, append(ids, value))
}

func (idx *Indexer) removeFromList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	return idx.putList(key, slices.DeleteFunc(ids, func(id string) bool { return id == value }))
}

func (idx *Indexer) putList(key string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

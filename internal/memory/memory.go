// Package memory persists what worked: label substitutions learned from
// successful fuzzy or translated matches, and shortcut preferences learned
// from verified key sequences. Everything is scoped per application and
// stored through the schemas.KVStore collaborator.
package memory

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const (
	translationPrefix = "tm/"
	shortcutPrefix    = "pref/"
	journalPrefix     = "journal/"

	// minConfidence gates Lookup: a substitution must have survived at least
	// this many net successes before it is offered to the resolver.
	minConfidence = 1

	// maxConfidence caps the counter so one stale entry cannot take dozens
	// of failures to unlearn.
	maxConfidence = 5
)

// Memory implements schemas.TranslationMemory and schemas.Journal over a
// flat key-value store.
type Memory struct {
	kv  schemas.KVStore
	log *zap.Logger
	now func() time.Time
}

func New(kv schemas.KVStore, logger *zap.Logger) *Memory {
	return &Memory{
		kv:  kv,
		log: logger.Named("memory"),
		now: time.Now,
	}
}

// labelOf strips a role qualifier from a canonical descriptor form, so
// "button:Save" compares as "Save".
func labelOf(canonical string) string {
	if i := strings.LastIndex(canonical, ":"); i >= 0 {
		return canonical[i+1:]
	}
	return canonical
}

func translationKey(appID, canonical string) string {
	return translationPrefix + appID + "/" + canonical
}

func shortcutKey(appID, action string) string {
	return shortcutPrefix + appID + "/" + action
}

// Lookup returns a learned substitute label for the canonical descriptor
// form, app-scoped. Misses and malformed entries report as not found.
func (m *Memory) Lookup(ctx context.Context, appID, canonical string) (string, bool) {
	raw, found, err := m.kv.Get(ctx, translationKey(appID, canonical))
	if err != nil {
		m.log.Warn("Translation lookup failed", zap.String("app_id", appID), zap.Error(err))
		return "", false
	}
	if !found {
		return "", false
	}

	var entry schemas.TranslationEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		m.log.Warn("Discarding malformed translation entry",
			zap.String("key", translationKey(appID, canonical)), zap.Error(err))
		return "", false
	}
	if entry.Confidence < minConfidence || entry.Substitute == "" {
		return "", false
	}
	return entry.Substitute, true
}

// RecordOutcome adjusts the confidence of a substitution after a verified
// action. Successful fuzzy and translated matches reinforce the mapping from
// the canonical form to the label that actually matched; failures weaken it
// until the entry is dropped.
func (m *Memory) RecordOutcome(ctx context.Context, appID, canonical string, attempted *schemas.Candidate, succeeded bool) error {
	key, raw, err := m.translationUpdate(ctx, appID, canonical, attempted, succeeded)
	if err != nil {
		return err
	}
	return m.applyTranslation(ctx, key, raw)
}

// translationUpdate computes the pending translation write for one outcome.
// An empty key means the outcome carries no substitution signal; a nil raw
// with a key means the entry dropped below the confidence floor and should
// be deleted.
func (m *Memory) translationUpdate(ctx context.Context, appID, canonical string, attempted *schemas.Candidate, succeeded bool) (string, stdjson.RawMessage, error) {
	if canonical == "" || attempted == nil || attempted.Element == nil {
		return "", nil, nil
	}
	switch attempted.Rule {
	case schemas.MatchOrdinal, schemas.MatchSpatial, schemas.MatchContainer:
		// Structural selections carry no label substitution signal.
		return "", nil, nil
	}
	if strings.EqualFold(attempted.Element.Label, canonical) {
		return "", nil, nil
	}
	if base := labelOf(canonical); base != "" && strings.EqualFold(attempted.Element.Label, base) {
		return "", nil, nil
	}

	key := translationKey(appID, canonical)
	entry := schemas.TranslationEntry{
		AppID:     appID,
		Canonical: canonical,
		Role:      attempted.Element.Role,
	}
	if raw, found, err := m.kv.Get(ctx, key); err != nil {
		return "", nil, fmt.Errorf("failed to read translation entry: %w", err)
	} else if found {
		if err := json.Unmarshal(raw, &entry); err != nil {
			m.log.Warn("Overwriting malformed translation entry", zap.String("key", key), zap.Error(err))
		}
	}

	if succeeded {
		entry.Substitute = attempted.Element.Label
		entry.Confidence++
		if entry.Confidence > maxConfidence {
			entry.Confidence = maxConfidence
		}
	} else {
		entry.Confidence--
	}
	entry.LastSeen = m.now().UTC()

	if entry.Confidence <= 0 {
		return key, nil, nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal translation entry: %w", err)
	}
	m.log.Debug("Recorded translation outcome",
		zap.String("canonical", canonical),
		zap.String("substitute", entry.Substitute),
		zap.Int("confidence", entry.Confidence),
		zap.Bool("succeeded", succeeded))
	return key, raw, nil
}

// applyTranslation commits a pending translation write from translationUpdate.
func (m *Memory) applyTranslation(ctx context.Context, key string, raw stdjson.RawMessage) error {
	if key == "" {
		return nil
	}
	if raw == nil {
		if err := m.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to drop translation entry: %w", err)
		}
		m.log.Debug("Dropped translation entry", zap.String("key", key))
		return nil
	}
	if err := m.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to persist translation entry: %w", err)
	}
	return nil
}

// PreferredShortcut returns the learned key sequence for a canonical action,
// if one has positive weight.
func (m *Memory) PreferredShortcut(ctx context.Context, appID, action string) (*schemas.Preference, bool) {
	raw, found, err := m.kv.Get(ctx, shortcutKey(appID, action))
	if err != nil {
		m.log.Warn("Shortcut lookup failed", zap.String("app_id", appID), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var pref schemas.Preference
	if err := json.Unmarshal(raw, &pref); err != nil {
		m.log.Warn("Discarding malformed shortcut entry",
			zap.String("key", shortcutKey(appID, action)), zap.Error(err))
		return nil, false
	}
	if pref.Weight < 1 || len(pref.Shortcut) == 0 {
		return nil, false
	}
	return &pref, true
}

// RecordShortcut reinforces a key sequence that produced the expected change.
func (m *Memory) RecordShortcut(ctx context.Context, appID, action string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	key := shortcutKey(appID, action)
	pref := schemas.Preference{AppID: appID, Action: action}
	if raw, found, err := m.kv.Get(ctx, key); err != nil {
		return fmt.Errorf("failed to read shortcut entry: %w", err)
	} else if found {
		if err := json.Unmarshal(raw, &pref); err != nil {
			m.log.Warn("Overwriting malformed shortcut entry", zap.String("key", key), zap.Error(err))
		}
	}

	pref.Shortcut = keys
	pref.Weight++
	pref.LastUsed = m.now().UTC()

	raw, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to marshal shortcut entry: %w", err)
	}
	if err := m.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to persist shortcut entry: %w", err)
	}
	return nil
}

// DemoteShortcut weakens a shortcut whose post-action diff showed no relevant
// change. The entry stays at weight zero rather than being deleted, so a
// demoted shortcut is remembered but no longer offered.
func (m *Memory) DemoteShortcut(ctx context.Context, appID, action string) error {
	key := shortcutKey(appID, action)
	raw, found, err := m.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read shortcut entry: %w", err)
	}
	if !found {
		return nil
	}

	var pref schemas.Preference
	if err := json.Unmarshal(raw, &pref); err != nil {
		return m.kv.Delete(ctx, key)
	}
	if pref.Weight > 0 {
		pref.Weight--
	}
	pref.LastUsed = m.now().UTC()

	out, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to marshal shortcut entry: %w", err)
	}
	if err := m.kv.Set(ctx, key, out); err != nil {
		return fmt.Errorf("failed to persist demoted shortcut: %w", err)
	}
	m.log.Debug("Demoted shortcut", zap.String("action", action), zap.Int("weight", pref.Weight))
	return nil
}

// Clear forgets every learned translation and shortcut for one application.
// The journal is not cleared; it is an audit log, not learned state.
func (m *Memory) Clear(ctx context.Context, appID string) error {
	for _, prefix := range []string{translationPrefix + appID + "/", shortcutPrefix + appID + "/"} {
		keys, err := m.kv.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to list %q for clear: %w", prefix, err)
		}
		for _, k := range keys {
			if err := m.kv.Delete(ctx, k); err != nil {
				return fmt.Errorf("failed to delete %q: %w", k, err)
			}
		}
	}
	m.log.Info("Cleared learned memory", zap.String("app_id", appID))
	return nil
}

// Append writes one journal record. Keys embed the timestamp so lexical key
// order is chronological order.
func (m *Memory) Append(ctx context.Context, entry schemas.ActionJournalEntry) error {
	key, raw, err := m.journalRecord(&entry)
	if err != nil {
		return err
	}
	if err := m.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

func (m *Memory) journalRecord(entry *schemas.ActionJournalEntry) (string, stdjson.RawMessage, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = m.now().UTC()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	key := journalPrefix + entry.At.UTC().Format("20060102T150405.000000000") + "-" + entry.ID
	return key, raw, nil
}

// RecordAction persists one attempted segment: the journal entry always, and
// the translation update when the attempt carries a substitution signal.
// Stores that batch multi-key writes get both in one transaction, so a
// journaled success can never lose its learned substitution to a crash
// between the two writes.
func (m *Memory) RecordAction(ctx context.Context, entry schemas.ActionJournalEntry, attempted *schemas.Candidate, succeeded bool) error {
	jKey, jRaw, err := m.journalRecord(&entry)
	if err != nil {
		return err
	}
	tKey, tRaw, err := m.translationUpdate(ctx, entry.AppID, entry.Descriptor, attempted, succeeded)
	if err != nil {
		return err
	}

	if tKey != "" && tRaw != nil {
		if batch, ok := m.kv.(schemas.BatchKVStore); ok {
			return batch.TxSet(ctx, map[string]stdjson.RawMessage{jKey: jRaw, tKey: tRaw})
		}
	}
	if err := m.kv.Set(ctx, jKey, jRaw); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return m.applyTranslation(ctx, tKey, tRaw)
}

// Recent returns up to limit journal entries, newest first.
func (m *Memory) Recent(ctx context.Context, limit int) ([]schemas.ActionJournalEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	keys, err := m.kv.List(ctx, journalPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	if len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	entries := make([]schemas.ActionJournalEntry, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		raw, found, err := m.kv.Get(ctx, keys[i])
		if err != nil {
			return nil, fmt.Errorf("failed to read journal entry %q: %w", keys[i], err)
		}
		if !found {
			continue
		}
		var entry schemas.ActionJournalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			m.log.Warn("Skipping malformed journal entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

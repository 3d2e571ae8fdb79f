/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps bounded undo and redo stacks of text states, one pair
// of stacks per key.
package undo

import (
	"sync"
	"time"
)

// Snapshot is a text state of Key captured at TS.
type Snapshot struct {
	Key  string
	Text string
	TS   time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap over all keys; the oldest states are dropped
	// when it is exceeded. 16 MiB when zero.
	MaxBytes int
	// MaxPerKey limits the undo depth of a key (0 means unlimited).
	MaxPerKey int
	// MinInterval coalesces pushes for the same key within the interval:
	// the earlier state is kept. Zero disables coalescing.
	MinInterval time.Duration
}

// Manager is safe for concurrent use.
type Manager struct {
	cfg        Config
	mu         sync.Mutex
	undo       map[string][]Snapshot
	redo       map[string][]Snapshot
	totalBytes int
	now        func() time.Time
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot), now: time.Now}
}

// Push records the state a key had before a change and clears its redo
// stack.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.TS.IsZero() {
		s.TS = m.now()
	}
	m.redo[s.Key] = nil
	stack := m.undo[s.Key]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		return
	}
	m.undo[s.Key] = append(stack, s)
	m.totalBytes += len(s.Text)
	m.enforceCapsLocked(s.Key)
}

// Undo returns the previous state of key and remembers current for Redo.
func (m *Manager) Undo(key, current string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[key] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Text)
	m.redo[key] = append(m.redo[key], Snapshot{Key: key, Text: current, TS: m.now()})
	return s, true
}

// Redo returns the state undone last and pushes current back onto the undo
// stack.
func (m *Manager) Redo(key, current string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[key]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[key] = r[:len(r)-1]
	m.undo[key] = append(m.undo[key], Snapshot{Key: key, Text: current, TS: m.now()})
	m.totalBytes += len(current)
	m.enforceCapsLocked(key)
	return s, true
}

// Clear drops both stacks of key.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[key] {
		m.totalBytes -= len(s.Text)
	}
	delete(m.undo, key)
	delete(m.redo, key)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, keys int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, keys, totalSnapshots
}

func (m *Manager) enforceCapsLocked(key string) {
	if m.cfg.MaxPerKey > 0 {
		stack := m.undo[key]
		if len(stack) > m.cfg.MaxPerKey {
			toDrop := len(stack) - m.cfg.MaxPerKey
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Text)
			}
			m.undo[key] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// prune the oldest state across all keys
	for m.totalBytes > m.cfg.MaxBytes {
		oldestKey := ""
		found := false
		var oldestTS time.Time
		for k, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestKey, oldestTS, found = k, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestKey]
		m.totalBytes -= len(stack[0].Text)
		m.undo[oldestKey] = stack[1:]
		if len(m.undo[oldestKey]) == 0 {
			delete(m.undo, oldestKey)
		}
	}
}

// Package memory is an in-process entry store, used by default and in tests.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"budgetlens/internal/core"
)

type Store struct {
	mu     sync.Mutex
	items  []core.Entry
	nextID int
}

func New(initial ...core.Entry) *Store {
	s := &Store{}
	for _, e := range initial {
		s.add(e)
	}
	return s
}

// NewFromFile loads entries from a JSON-lines file of entry records. Blank
// lines and lines starting with # are skipped. A missing file yields an empty
// store.
func NewFromFile(path string) (*Store, error) {
	recs, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	s := New()
	for i, r := range recs {
		e, err := r.ToEntry()
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", path, i+1, err)
		}
		s.add(e)
	}
	return s, nil
}

// Add validates and stores the entry, returning a synthetic id.
func (s *Store) Add(_ context.Context, e core.Entry) (string, error) {
	if err := core.ValidateEntry(e); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(e), nil
}

func (s *Store) add(e core.Entry) string {
	s.nextID++
	id := core.IDOf(e)
	if id == "" {
		id = fmt.Sprintf("mem:%d", s.nextID)
	}
	s.items = append(s.items, core.WithID(e, id))
	return id
}

// List returns a copy of the stored entries in insertion order.
func (s *Store) List(_ context.Context) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Entry(nil), s.items...), nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func readRecords(path string) ([]core.EntryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []core.EntryRecord
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var r core.EntryRecord
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

package facts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"factmill/manager-go/internal/utils"
)

// Store persists facts in one JSON document keyed by category. Scheduled
// runs can overlap, so every read-modify-write cycle holds an exclusive lock
// file; without it concurrent runs silently drop "used" markers and the same
// fact gets published twice.
type Store struct {
	Path        string
	LockTimeout time.Duration
}

func NewStore(path string) *Store {
	return &Store{Path: path, LockTimeout: 10 * time.Second}
}

var ErrLockTimeout = errors.New("facts: store lock timed out")

func (s *Store) lockPath() string { return s.Path + ".lock" }

func (s *Store) acquireLock() (release func(), err error) {
	deadline := time.Now().Add(s.LockTimeout)
	for {
		f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(s.lockPath()) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: held by %s", ErrLockTimeout, s.lockPath())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Load reads the whole catalog. A missing file is an empty catalog.
func (s *Store) Load() (map[string][]Fact, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]Fact{}, nil
		}
		return nil, err
	}
	catalog := map[string][]Fact{}
	if len(data) == 0 {
		return catalog, nil
	}
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("facts: decode %s: %w", s.Path, err)
	}
	return catalog, nil
}

func (s *Store) save(catalog map[string][]Fact) error {
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(s.Path, data, 0o644)
}

// Add appends facts to a category, skipping exact-text duplicates.
func (s *Store) Add(category string, add []Fact) error {
	release, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	catalog, err := s.Load()
	if err != nil {
		return err
	}

	existing := map[string]bool{}
	for _, f := range catalog[category] {
		existing[normalize(f.Text)] = true
	}
	added := 0
	for _, f := range add {
		key := normalize(f.Text)
		if key == "" || existing[key] {
			continue
		}
		existing[key] = true
		f.Category = category
		if f.DateAdded.IsZero() {
			f.DateAdded = time.Now().UTC()
		}
		catalog[category] = append(catalog[category], f)
		added++
	}
	utils.Debug("facts added", "category", category, "added", added, "total", len(catalog[category]))
	return s.save(catalog)
}

// Unused returns up to n unused facts for the category, oldest first.
func (s *Store) Unused(category string, n int) ([]Fact, error) {
	catalog, err := s.Load()
	if err != nil {
		return nil, err
	}
	var unused []Fact
	for _, f := range catalog[category] {
		if !f.Used {
			unused = append(unused, f)
		}
		if n > 0 && len(unused) == n {
			break
		}
	}
	return unused, nil
}

// MarkUsed flags the given fact texts as consumed. Unknown texts are
// ignored; marking is best-effort bookkeeping, not a transaction with the
// upload state.
func (s *Store) MarkUsed(category string, texts []string) error {
	release, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	catalog, err := s.Load()
	if err != nil {
		return err
	}

	wanted := map[string]bool{}
	for _, t := range texts {
		wanted[normalize(t)] = true
	}
	now := time.Now().UTC()
	marked := 0
	for i := range catalog[category] {
		f := &catalog[category][i]
		if !f.Used && wanted[normalize(f.Text)] {
			f.Used = true
			f.UsedDate = &now
			marked++
		}
	}
	utils.Debug("facts marked used", "category", category, "marked", marked)
	return s.save(catalog)
}

func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

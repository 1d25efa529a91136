package contact

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/c360/seatrack/errors"
)

// Cache keys written for descriptor fields.
const (
	CacheKeyBow         = "bow"
	CacheKeyStern       = "stern"
	CacheKeyPort        = "port"
	CacheKeyStarboard   = "starboard"
	CacheKeyType        = "type"
	CacheKeyDraught     = "draught"
	CacheKeyCallSign    = "callsign"
	CacheKeyDestination = "destination"
)

var textKeys = map[string]bool{
	CacheKeyCallSign:    true,
	CacheKeyDestination: true,
}

// CacheEntry is one remembered vessel. Values holds int64, float64 or string
// values; a numeric field that fails to parse is kept as its text.
type CacheEntry struct {
	ID     int64
	Label  string
	Values map[string]any
}

func (e *CacheEntry) clone() CacheEntry {
	out := CacheEntry{ID: e.ID, Label: e.Label, Values: make(map[string]any, len(e.Values))}
	for k, v := range e.Values {
		out.Values[k] = v
	}
	return out
}

// CacheEntry returns a copy of the cached entry for id.
func (s *Store) CacheEntry(id int64) (CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache[id]
	if !ok {
		return CacheEntry{}, false
	}
	return e.clone(), true
}

// CacheLen returns the number of cached entries.
func (s *Store) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cache)
}

// rememberLocked refreshes the cache entry for c. Keys the store does not
// know are left untouched. Callers hold s.mu.
func (s *Store) rememberLocked(c *Contact) {
	e, ok := s.cache[c.ID]
	if !ok {
		e = &CacheEntry{ID: c.ID, Values: make(map[string]any)}
		s.cache[c.ID] = e
	}
	e.Label = c.Label

	d := c.Descriptor
	if d == nil {
		return
	}
	setInt := func(key string, v int) {
		if v != 0 {
			e.Values[key] = int64(v)
		}
	}
	setInt(CacheKeyBow, d.Bow)
	setInt(CacheKeyStern, d.Stern)
	setInt(CacheKeyPort, d.Port)
	setInt(CacheKeyStarboard, d.Starboard)
	setInt(CacheKeyType, d.ShipType)
	if d.Draught != 0 {
		e.Values[CacheKeyDraught] = d.Draught
	}
	if d.CallSign != "" {
		e.Values[CacheKeyCallSign] = d.CallSign
	}
	if d.Destination != "" {
		e.Values[CacheKeyDestination] = d.Destination
	}
}

// LoadCache reads the label cache file and merges it into the store. A
// missing file is not an error. Live contacts still carrying their default
// label pick up the cached one; a name already learned live wins.
func (s *Store) LoadCache() error {
	if s.cacheFile == "" {
		return nil
	}

	f, err := os.Open(s.cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No label cache yet", "path", s.cacheFile)
			return nil
		}
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrCacheUnavailable, err),
			"Store", "LoadCache", "open cache file")
	}
	defer f.Close()

	entries, skipped, err := readCache(f)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrCacheUnavailable, err),
			"Store", "LoadCache", "read cache file")
	}

	s.mu.Lock()
	for _, e := range entries {
		if c, ok := s.contacts[e.ID]; ok {
			if c.Label == strconv.FormatInt(c.ID, 10) {
				c.setLabel(e.Label)
			} else {
				e.Label = c.Label
			}
		}
		s.cache[e.ID] = e
	}
	total := len(s.cache)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CacheEntries.Set(float64(total))
	}
	s.logger.Info("Loaded label cache", "path", s.cacheFile, "entries", len(entries), "skipped", skipped)
	return nil
}

// FlushCache writes every cache entry, including those whose contact has been
// purged. The file is replaced atomically.
func (s *Store) FlushCache() error {
	if s.cacheFile == "" {
		return nil
	}

	s.mu.Lock()
	entries := make([]CacheEntry, 0, len(s.cache))
	for _, e := range s.cache {
		entries = append(entries, e.clone())
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	if err := writeCacheFile(s.cacheFile, entries); err != nil {
		if s.metrics != nil {
			s.metrics.CacheFlushes.WithLabelValues("error").Inc()
		}
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrCacheUnavailable, err),
			"Store", "FlushCache", "write cache file")
	}

	if s.metrics != nil {
		s.metrics.CacheFlushes.WithLabelValues("ok").Inc()
		s.metrics.CacheEntries.Set(float64(len(entries)))
	}
	return nil
}

func writeCacheFile(path string, entries []CacheEntry) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".contacts-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		if _, err := w.WriteString(formatCacheLine(e)); err != nil {
			tmp.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readCache(r io.Reader) (entries []*CacheEntry, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, ok := parseCacheLine(line)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, scanner.Err()
}

// parseCacheLine parses "id,label[,key=value]*". Only an unreadable id
// rejects the line.
func parseCacheLine(line string) (*CacheEntry, bool) {
	fields := strings.Split(line, ",")
	id, ok := parseID(fields[0])
	if !ok {
		return nil, false
	}

	e := &CacheEntry{ID: id, Values: make(map[string]any)}
	if len(fields) > 1 {
		e.Label = strings.TrimSpace(fields[1])
	}
	for _, kv := range fields[min(2, len(fields)):] {
		key, raw, found := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		e.Values[key] = parseCacheValue(key, strings.TrimSpace(raw))
	}
	return e, true
}

// parseID accepts decimal or 0x-prefixed hex.
func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := cutHexPrefix(s); ok {
		id, err := strconv.ParseInt(rest, 16, 64)
		return id, err == nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

func cutHexPrefix(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return rest, true
	}
	return strings.CutPrefix(s, "0X")
}

func parseCacheValue(key, raw string) any {
	if textKeys[key] {
		return raw
	}
	if key == CacheKeyDraught {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return raw
	}
	if rest, ok := cutHexPrefix(raw); ok {
		if v, err := strconv.ParseInt(rest, 16, 64); err == nil {
			return v
		}
		return raw
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}

func formatCacheLine(e CacheEntry) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(e.ID, 10))
	b.WriteByte(',')
	b.WriteString(cacheText(e.Label))

	keys := make([]string, 0, len(e.Values))
	for k := range e.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(cacheText(k))
		b.WriteByte('=')
		switch v := e.Values[k].(type) {
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		case float64:
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		default:
			b.WriteString(cacheText(fmt.Sprint(v)))
		}
	}
	return b.String()
}

// cacheText strips the characters that would break the line format.
func cacheText(s string) string {
	return strings.TrimSpace(strings.NewReplacer(",", " ", "\n", " ", "\r", " ", "=", " ").Replace(s))
}

// Package ais decodes the binary packed dialect: AIVDM/AIVDO sentences
// carrying 6-bit armoured AIS messages, reassembled across fragments.
package ais

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
)

// DefaultFragmentTimeout is how long a partial multi-sentence message waits
// for its remaining fragments.
const DefaultFragmentTimeout = 10 * time.Second

type groupKey struct {
	seq     int64
	channel string
	own     bool
}

type fragmentGroup struct {
	total   int64
	next    int64
	payload strings.Builder
	started time.Time
}

// Decoder reassembles and decodes AIS sentences. It is safe for concurrent
// use; fragments of one message must arrive in order on one transport.
type Decoder struct {
	mu      sync.Mutex
	groups  map[groupKey]*fragmentGroup
	timeout time.Duration
	now     func() time.Time
}

// NewDecoder creates a decoder. A timeout <= 0 uses DefaultFragmentTimeout.
func NewDecoder(timeout time.Duration) *Decoder {
	if timeout <= 0 {
		timeout = DefaultFragmentTimeout
	}
	return &Decoder{
		groups:  make(map[groupKey]*fragmentGroup),
		timeout: timeout,
		now:     time.Now,
	}
}

// Decode decodes one VDM or VDO sentence. Intermediate fragments decode to
// an empty result. VDO sentences describe the local platform and decode to
// an own-ship update.
func (d *Decoder) Decode(line string) (processor.Result, error) {
	s, err := gonmea.Parse(line)
	if err != nil {
		cause := errors.ErrParsingFailed
		if strings.Contains(err.Error(), "checksum") {
			cause = errors.ErrChecksumFailed
		}
		return processor.Result{}, errors.WrapInvalid(fmt.Errorf("%w: %v", cause, err), "ais", "Decode", "parse sentence")
	}

	v, ok := s.(gonmea.VDMVDO)
	if !ok {
		return processor.Result{}, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnsupportedMessage, s.DataType()),
			"ais", "Decode", "dispatch sentence")
	}

	own := s.DataType() == "VDO"
	armoured := fieldAt(v.Fields, 4)
	fill, err := strconv.Atoi(fieldAt(v.Fields, 5))
	if err != nil {
		fill = 0
	}

	if v.NumFragments <= 1 {
		return decodeMessage(armoured, fill, own)
	}

	armoured, complete, err := d.assemble(groupKey{seq: v.MessageID, channel: v.Channel, own: own},
		v.NumFragments, v.FragmentNumber, armoured)
	if err != nil || !complete {
		return processor.Result{}, err
	}
	return decodeMessage(armoured, fill, own)
}

// assemble appends one fragment. The fill bits of the last fragment apply
// to the whole message.
func (d *Decoder) assemble(key groupKey, total, number int64, part string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expireLocked(now)

	if number == 1 {
		g := &fragmentGroup{total: total, next: 2, started: now}
		g.payload.WriteString(part)
		d.groups[key] = g
		return "", false, nil
	}

	g, ok := d.groups[key]
	if !ok || g.total != total || g.next != number {
		delete(d.groups, key)
		return "", false, errors.WrapInvalid(
			fmt.Errorf("%w: fragment %d of %d out of sequence", errors.ErrIncompleteFragment, number, total),
			"ais", "assemble", "append fragment")
	}

	g.payload.WriteString(part)
	g.next++
	if number < total {
		return "", false, nil
	}

	delete(d.groups, key)
	return g.payload.String(), true, nil
}

func (d *Decoder) expireLocked(now time.Time) {
	for key, g := range d.groups {
		if now.Sub(g.started) > d.timeout {
			delete(d.groups, key)
		}
	}
}

// Pending returns the number of partial messages waiting for fragments.
func (d *Decoder) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.expireLocked(d.now())
	return len(d.groups)
}

func fieldAt(fields []string, i int) string {
	if i < len(fields) {
		return strings.TrimSpace(fields[i])
	}
	return ""
}

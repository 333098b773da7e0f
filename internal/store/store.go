// Package store keeps a BoltDB catalogue of every receiver ever discovered
// and the small amount of state the CLI carries between runs.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"iscpctl/internal/device"
)

var (
	devicesBucket  = []byte("devices")
	settingsBucket = []byte("settings")

	selectedKey = []byte("selected")
)

// ErrNoSelection is returned by Selected when no device has been chosen.
var ErrNoSelection = errors.New("store: no device selected")

// DeviceRecord is one entry of the discovery history.
type DeviceRecord struct {
	Device    device.Device `msgpack:"device"`
	FirstSeen time.Time     `msgpack:"first_seen"`
	LastSeen  time.Time     `msgpack:"last_seen"`
	SeenCount uint64        `msgpack:"seen_count"`
}

// Store wraps a bbolt database.
type Store struct {
	db  *bolt.DB
	mu  sync.RWMutex
	log zerolog.Logger

	now func() time.Time
}

// New opens or creates a BoltDB file at the given path.
func New(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{devicesBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, log: log, now: time.Now}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey identifies a device across discoveries. Receivers that did not
// report a MAC fall back to their address.
func recordKey(d device.Device) []byte {
	if d.MAC != "" {
		return []byte(d.MAC)
	}
	return []byte(d.Address)
}

// Record inserts or refreshes a history entry for every device in one
// transaction.
func (s *Store) Record(devices []device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(devicesBucket)
		for _, d := range devices {
			key := recordKey(d)

			var record DeviceRecord
			if existing := b.Get(key); existing != nil {
				if err := msgpack.Unmarshal(existing, &record); err != nil {
					s.log.Warn().Err(err).Str("key", string(key)).Msg("Failed to unmarshal existing record, overwriting")
					record = DeviceRecord{FirstSeen: now}
				}
				s.log.Debug().
					Str("mac", d.MAC).
					Str("address", d.Address).
					Msg("Device updated")
			} else {
				record = DeviceRecord{FirstSeen: now}
				s.log.Info().
					Str("mac", d.MAC).
					Str("model", d.Model).
					Str("address", d.Address).
					Msg("New device recorded")
			}

			record.Device = d
			record.LastSeen = now
			record.SeenCount++

			data, err := msgpack.Marshal(&record)
			if err != nil {
				return fmt.Errorf("marshaling device record: %w", err)
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// History returns every recorded device, most recently seen first.
func (s *Store) History() ([]DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []DeviceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(devicesBucket)
		return b.ForEach(func(k, v []byte) error {
			var record DeviceRecord
			if err := msgpack.Unmarshal(v, &record); err != nil {
				s.log.Warn().Err(err).Str("key", string(k)).Msg("Skipping corrupt record")
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastSeen.After(records[j].LastSeen)
	})
	return records, nil
}

// Selected returns the registry index chosen with SetSelected.
func (s *Store) Selected() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var index int
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(settingsBucket).Get(selectedKey)
		if len(v) != 8 {
			return ErrNoSelection
		}
		index = int(int64(binary.BigEndian.Uint64(v)))
		return nil
	})
	return index, err
}

// SetSelected stores the registry index subsequent commands act on.
func (s *Store) SetSelected(index int) error {
	if index < 0 {
		return fmt.Errorf("invalid device index %d", index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(index))
		return tx.Bucket(settingsBucket).Put(selectedKey, buf[:])
	})
}

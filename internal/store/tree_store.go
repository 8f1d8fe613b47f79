package store

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/opencanopy/living-forest/internal/models"
	"github.com/opencanopy/living-forest/pkg/file"
	"github.com/opencanopy/living-forest/pkg/mqtt"
)

// ChangeSignal announces that the durable slot was rewritten. It carries
// the slot key so receivers can ignore writes to unrelated slots, and the
// origin context so a context can tell its own broadcasts apart.
type ChangeSignal struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// TreeStore owns the canonical in-memory tree collection. The durable slot
// (a JSON file holding the full sequence) is the source of truth: Load
// replaces memory from it, Append rewrites it whole, and every append emits
// exactly one change notification — delivered to same-context subscribers
// directly and broadcast to other contexts over MQTT.
type TreeStore struct {
	slotPath  string
	slotKey   string
	topic     string
	qos       int
	contextID string

	fileClient file.FileOperations
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	mu              sync.Mutex
	trees           []models.TreeRecord
	lastID          int64
	lastWrittenHash string

	subscribers cmap.ConcurrentMap[string, chan ChangeSignal]
}

// NewTreeStore creates a TreeStore over the given slot file. mqttClient may
// be nil, in which case appends are only observable within this context.
func NewTreeStore(slotPath, slotKey, topic string, qos int, contextID string,
	fileClient file.FileOperations, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *TreeStore {
	return &TreeStore{
		slotPath:    slotPath,
		slotKey:     slotKey,
		topic:       topic,
		qos:         qos,
		contextID:   contextID,
		fileClient:  fileClient,
		mqttClient:  mqttClient,
		logger:      logger,
		subscribers: cmap.New[chan ChangeSignal](),
	}
}

// SlotKey returns the durable slot's key name.
func (s *TreeStore) SlotKey() string {
	return s.slotKey
}

// SlotPath returns the path of the file backing the durable slot.
func (s *TreeStore) SlotPath() string {
	return s.slotPath
}

// Load reads the entire persisted collection from the durable slot and
// replaces the in-memory collection with it. A missing or empty slot yields
// an empty collection; a corrupt slot is logged and recovered to an empty
// collection. Load never fails the caller.
func (s *TreeStore) Load() []models.TreeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trees = s.readSlot()
	return s.snapshot()
}

// Current returns the present in-memory collection. Purely a read.
func (s *TreeStore) Current() []models.TreeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// NewRecord builds a TreeRecord for a submission, applying the defaults and
// assigning a creation-timestamp-derived id that is strictly increasing
// within this store.
func (s *TreeStore) NewRecord(name, species, location string, coord *models.Coordinate,
	status models.TreeStatus, lastVerified string) models.TreeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if species = strings.TrimSpace(species); species == "" {
		species = "Unknown"
	}
	if lastVerified = strings.TrimSpace(lastVerified); lastVerified == "" {
		lastVerified = "Just now"
	}

	now := time.Now()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	return models.TreeRecord{
		ID:           strconv.FormatInt(id, 10),
		Name:         strings.TrimSpace(name),
		Species:      species,
		Location:     strings.TrimSpace(location),
		Coordinate:   coord,
		Status:       status,
		LastVerified: lastVerified,
		UploadedAt:   now.UTC(),
	}
}

// Append appends the record to the collection and rewrites the durable slot
// as a single atomic replace. The slot is re-read immediately before the
// write so an append from another context that landed since our last load
// survives. On success exactly one change notification goes out.
func (s *TreeStore) Append(record models.TreeRecord) error {
	s.mu.Lock()

	s.trees = s.readSlot()
	record.ID = s.uniqueID(record.ID)
	s.trees = append(s.trees, record)

	if err := s.fileClient.WriteJsonFile(s.slotPath, s.trees); err != nil {
		// Roll memory back so Current never shows a record the slot lost.
		s.trees = s.trees[:len(s.trees)-1]
		s.mu.Unlock()
		return err
	}

	if hash, err := s.fileClient.GetFileHash(s.slotPath); err == nil {
		s.lastWrittenHash = hash
	}
	s.mu.Unlock()

	s.notify()

	s.logger.Info().
		Str("id", record.ID).
		Str("name", record.Name).
		Bool("has_coordinate", record.HasCoordinate()).
		Msg("Tree appended to slot")
	return nil
}

// Subscribe registers a same-context receiver for change signals. The
// returned id releases the subscription via Unsubscribe.
func (s *TreeStore) Subscribe() (string, <-chan ChangeSignal) {
	id := uuid.New().String()
	ch := make(chan ChangeSignal, 8)
	s.subscribers.Set(id, ch)
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *TreeStore) Unsubscribe(id string) {
	if ch, ok := s.subscribers.Get(id); ok {
		s.subscribers.Remove(id)
		close(ch)
	}
}

// LastWrittenHash returns the content hash of the slot as of this store's
// most recent write. The sync bridge uses it to skip reloading on file
// events caused by our own appends.
func (s *TreeStore) LastWrittenHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrittenHash
}

// readSlot loads the slot contents. Caller must hold mu.
func (s *TreeStore) readSlot() []models.TreeRecord {
	var trees []models.TreeRecord
	err := s.fileClient.ReadJsonFile(s.slotPath, &trees)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error().
				Err(err).
				Str("slot", s.slotKey).
				Msg("Failed to parse tree slot, recovering with empty collection")
		}
		return nil
	}

	for _, t := range trees {
		if id, perr := strconv.ParseInt(t.ID, 10, 64); perr == nil && id > s.lastID {
			s.lastID = id
		}
	}
	return trees
}

// uniqueID bumps id until no record in the collection carries it. Caller
// must hold mu.
func (s *TreeStore) uniqueID(id string) string {
	for s.idTaken(id) {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return id + "-" + strconv.FormatInt(s.lastID+1, 10)
		}
		id = strconv.FormatInt(n+1, 10)
	}
	return id
}

func (s *TreeStore) idTaken(id string) bool {
	for _, t := range s.trees {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (s *TreeStore) snapshot() []models.TreeRecord {
	out := make([]models.TreeRecord, len(s.trees))
	copy(out, s.trees)
	return out
}

// notify fans the change signal out to same-context subscribers and
// broadcasts it over MQTT for other contexts. Slow subscribers are skipped
// rather than blocked on; they converge on the next signal or reload.
func (s *TreeStore) notify() {
	signal := ChangeSignal{Key: s.slotKey, Origin: s.contextID}

	s.subscribers.IterCb(func(_ string, ch chan ChangeSignal) {
		select {
		case ch <- signal:
		default:
		}
	})

	if s.mqttClient == nil {
		return
	}

	payload, err := json.Marshal(signal)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to serialize change signal")
		return
	}

	token := s.mqttClient.Publish(s.topic, byte(s.qos), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error().
			Err(err).
			Str("topic", s.topic).
			Msg("Failed to broadcast change signal")
	}
}

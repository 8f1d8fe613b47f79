package services

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/opencanopy/living-forest/internal/store"
	"github.com/opencanopy/living-forest/internal/utils"
	"github.com/opencanopy/living-forest/pkg/file"
	"github.com/opencanopy/living-forest/pkg/mqtt"
)

// SyncService is the cross-context sync bridge. It funnels every mutation
// signal — a slot-file change observed on disk, a broadcast from another
// context, or this context's own append — into a single reload of the
// store, so every context converges on the durable slot without polling
// and without any merge logic.
type SyncService struct {
	// Configuration fields
	topic     string
	qos       int
	contextID string
	debounce  time.Duration

	// Dependencies
	treeStore  *store.TreeStore
	fileClient file.FileOperations
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	// Internal state management
	watcher     *fsnotify.Watcher
	pool        *utils.WorkerPool
	subID       string
	storeCh     <-chan store.ChangeSignal
	broadcastCh chan store.ChangeSignal
	stopCh      chan struct{}
	wg          sync.WaitGroup
	running     bool
}

// NewSyncService creates a new SyncService. mqttClient may be nil when the
// broadcast channel is disabled; the file watcher and same-context signals
// still operate.
func NewSyncService(topic string, qos int, contextID string, debounce time.Duration, workers int,
	treeStore *store.TreeStore, fileClient file.FileOperations, mqttClient mqtt.MQTTClient,
	logger zerolog.Logger) *SyncService {
	return &SyncService{
		topic:       topic,
		qos:         qos,
		contextID:   contextID,
		debounce:    debounce,
		treeStore:   treeStore,
		fileClient:  fileClient,
		mqttClient:  mqttClient,
		logger:      logger,
		pool:        utils.NewWorkerPool(workers),
		broadcastCh: make(chan store.ChangeSignal, 8),
		running:     false,
	}
}

// Start establishes all three subscriptions and begins reloading on signal.
func (s *SyncService) Start() error {
	if s.running {
		s.logger.Warn().Msg("SyncService is already running")
		return errors.New("sync service is already running")
	}

	slotDir := filepath.Dir(s.treeStore.SlotPath())
	if err := os.MkdirAll(slotDir, 0755); err != nil {
		s.logger.Warn().Err(err).Str("dir", slotDir).Msg("Failed to create slot directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(slotDir); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher

	if s.mqttClient != nil {
		token := s.mqttClient.Subscribe(s.topic, byte(s.qos), s.handleBroadcast)
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Error().Err(err).Str("topic", s.topic).Msg("Failed to subscribe to change-signal topic")
			watcher.Close()
			return err
		}
	}

	s.subID, s.storeCh = s.treeStore.Subscribe()
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.run()

	s.logger.Info().
		Str("topic", s.topic).
		Str("slot", s.treeStore.SlotKey()).
		Msg("SyncService started")
	return nil
}

// Stop tears the subscriptions down so no listener leaks past the service's
// lifetime.
func (s *SyncService) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("SyncService is not running")
		return errors.New("sync service is not running")
	}

	close(s.stopCh)
	s.watcher.Close()
	s.wg.Wait()

	if s.mqttClient != nil {
		token := s.mqttClient.Unsubscribe(s.topic)
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Error().Err(err).Str("topic", s.topic).Msg("Failed to unsubscribe from change-signal topic")
			return err
		}
	}

	s.treeStore.Unsubscribe(s.subID)
	s.pool.Shutdown()

	s.running = false
	s.logger.Info().Msg("SyncService stopped")
	return nil
}

// handleBroadcast receives change signals from other contexts over MQTT.
func (s *SyncService) handleBroadcast(_ MQTT.Client, msg MQTT.Message) {
	var signal store.ChangeSignal
	if err := json.Unmarshal(msg.Payload(), &signal); err != nil {
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Ignoring malformed change signal")
		return
	}

	if signal.Key != s.treeStore.SlotKey() {
		return
	}
	// Our own broadcast loops back through the broker; the same-context
	// subscription already reloaded for it.
	if signal.Origin == s.contextID {
		return
	}

	select {
	case s.broadcastCh <- signal:
	default:
	}
}

// run is the single reload-on-signal handler every signal class funnels
// through.
func (s *SyncService) run() {
	defer s.wg.Done()

	var lastFileReload time.Time

	for {
		select {
		case <-s.stopCh:
			return

		case _, ok := <-s.storeCh:
			if !ok {
				return
			}
			// Same-context append: unconditionally relevant.
			s.scheduleReload("append")

		case signal, ok := <-s.broadcastCh:
			if !ok {
				return
			}
			s.logger.Debug().Str("origin", signal.Origin).Msg("Change signal from another context")
			s.scheduleReload("broadcast")

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.isSlotEvent(event) {
				continue
			}
			if time.Since(lastFileReload) < s.debounce {
				continue
			}
			if s.isOwnWrite() {
				continue
			}
			lastFileReload = time.Now()
			s.scheduleReload("storage")

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("Slot watcher error")
		}
	}
}

// isSlotEvent reports whether the file event is a write to the slot file
// itself, not a neighbour in the same directory.
func (s *SyncService) isSlotEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(s.treeStore.SlotPath()) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// isOwnWrite reports whether the slot currently holds exactly what this
// context last wrote, meaning the observed file event was our own append.
func (s *SyncService) isOwnWrite() bool {
	lastWritten := s.treeStore.LastWrittenHash()
	if lastWritten == "" {
		return false
	}
	hash, err := s.fileClient.GetFileHash(s.treeStore.SlotPath())
	if err != nil {
		return false
	}
	return hash == lastWritten
}

func (s *SyncService) scheduleReload(reason string) {
	s.pool.Submit(func() {
		s.treeStore.Load()
		s.logger.Debug().Str("reason", reason).Msg("Reloaded tree collection from slot")
	})
}

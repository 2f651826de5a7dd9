package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Sentinel errors for callers that need to distinguish outcomes.
var (
	ErrNotFound  = errors.New("channel not registered")
	ErrInvalid   = errors.New("invalid channel definition")
	ErrDuplicate = errors.New("channel already registered")
	ErrLimit     = errors.New("channel limit reached")
)

// Channel is one monitored ThingSpeak channel
type Channel struct {
	Name   string `json:"name"`
	ID     int    `json:"channel"`
	APIKey string `json:"key"`
}

// Registry holds the set of monitored channels, persisted as a JSON
// array in a file. Mutations rewrite the file atomically; a missing
// file means an empty registry.
type Registry struct {
	mu          sync.RWMutex
	filePath    string
	maxChannels int
	channels    map[int]Channel
	logger      *zap.Logger
}

// New creates a registry backed by the given file
func New(filePath string, maxChannels int, logger *zap.Logger) *Registry {
	return &Registry{
		filePath:    filePath,
		maxChannels: maxChannels,
		channels:    make(map[int]Channel),
		logger:      logger,
	}
}

// Load reads the channel file. A missing file leaves the registry empty.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Info("Channel file not found, starting empty",
				zap.String("path", r.filePath))
			return nil
		}
		return fmt.Errorf("reading channel file: %w", err)
	}

	var channels []Channel
	if err := json.Unmarshal(data, &channels); err != nil {
		return fmt.Errorf("parsing channel file %s: %w", r.filePath, err)
	}

	r.channels = make(map[int]Channel, len(channels))
	for _, ch := range channels {
		if ch.ID <= 0 {
			r.logger.Warn("Skipping channel with invalid id",
				zap.String("name", ch.Name),
				zap.Int("channel", ch.ID))
			continue
		}
		r.channels[ch.ID] = ch
	}

	r.logger.Info("Loaded channel registry",
		zap.String("path", r.filePath),
		zap.Int("channels", len(r.channels)))
	return nil
}

// List returns all channels sorted by ID
func (r *Registry) List() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the channel with the given ID
func (r *Registry) Get(id int) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// Len returns the number of registered channels
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Add registers a new channel and persists the file
func (r *Registry) Add(ch Channel) error {
	if err := validate(ch); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[ch.ID]; exists {
		return fmt.Errorf("channel %d: %w", ch.ID, ErrDuplicate)
	}
	if len(r.channels) >= r.maxChannels {
		return fmt.Errorf("limit of %d channels: %w", r.maxChannels, ErrLimit)
	}

	r.channels[ch.ID] = ch
	if err := r.persist(); err != nil {
		delete(r.channels, ch.ID)
		return err
	}

	r.logger.Info("Added channel",
		zap.Int("channel", ch.ID),
		zap.String("name", ch.Name))
	return nil
}

// Update replaces an existing channel's definition and persists the file
func (r *Registry) Update(ch Channel) error {
	if err := validate(ch); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.channels[ch.ID]
	if !exists {
		return fmt.Errorf("channel %d: %w", ch.ID, ErrNotFound)
	}

	r.channels[ch.ID] = ch
	if err := r.persist(); err != nil {
		r.channels[ch.ID] = prev
		return err
	}

	r.logger.Info("Updated channel",
		zap.Int("channel", ch.ID),
		zap.String("name", ch.Name))
	return nil
}

// Remove deletes a channel and persists the file
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.channels[id]
	if !exists {
		return fmt.Errorf("channel %d: %w", id, ErrNotFound)
	}

	delete(r.channels, id)
	if err := r.persist(); err != nil {
		r.channels[id] = prev
		return err
	}

	r.logger.Info("Removed channel", zap.Int("channel", id))
	return nil
}

func validate(ch Channel) error {
	if ch.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalid)
	}
	if ch.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}
	if ch.APIKey == "" {
		return fmt.Errorf("%w: api key cannot be empty", ErrInvalid)
	}
	return nil
}

// persist writes the registry to a temp file and renames it into place.
// Callers hold the write lock.
func (r *Registry) persist() error {
	channels := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	data, err := json.MarshalIndent(channels, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding channel file: %w", err)
	}

	dir := filepath.Dir(r.filePath)
	tmp, err := os.CreateTemp(dir, ".channels-*.json")
	if err != nil {
		return fmt.Errorf("creating temp channel file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing channel file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing channel file: %w", err)
	}
	if err := os.Rename(tmpName, r.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing channel file: %w", err)
	}
	return nil
}

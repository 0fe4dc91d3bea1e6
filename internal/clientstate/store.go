// Package clientstate holds the client-local state that lives outside the
// room protocol: the per-room identity used to join, and a short list of
// recently visited rooms. Both persist in one small JSON file.
package clientstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxRecentRooms caps the most-recent-first room list.
const MaxRecentRooms = 20

type Identity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type RecentRoom struct {
	RoomID       string    `json:"roomId"`
	RoomName     string    `json:"roomName"`
	LastAccessed time.Time `json:"lastAccessed"`
}

type fileData struct {
	Identities  map[string]Identity `json:"identities"` // keyed by roomId
	RecentRooms []RecentRoom        `json:"recentRooms"`
}

type Store struct {
	path string

	mu   sync.Mutex
	data fileData
}

// Open loads the store from path, starting empty if the file is missing.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: fileData{Identities: map[string]Identity{}}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client state: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse client state: %w", err)
	}
	if s.data.Identities == nil {
		s.data.Identities = map[string]Identity{}
	}
	return s, nil
}

// GetOrCreateIdentity returns the stable identity for a room, minting one on
// first use. name is only used when a new identity is created.
func (s *Store) GetOrCreateIdentity(roomID, name string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.data.Identities[roomID]; ok {
		return id, nil
	}
	id := Identity{UserID: uuid.NewString(), UserName: name}
	s.data.Identities[roomID] = id
	if err := s.save(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// SetIdentity records an identity handed out by the room-creation call, so
// the owner rejoins under the same userId.
func (s *Store) SetIdentity(roomID string, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Identities[roomID] = id
	return s.save()
}

// Touch moves a room to the front of the recent list, trimming it to
// MaxRecentRooms.
func (s *Store) Touch(roomID, roomName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := RecentRoom{RoomID: roomID, RoomName: roomName, LastAccessed: time.Now()}
	rooms := make([]RecentRoom, 0, len(s.data.RecentRooms)+1)
	rooms = append(rooms, entry)
	for _, r := range s.data.RecentRooms {
		if r.RoomID == roomID {
			continue
		}
		rooms = append(rooms, r)
	}
	if len(rooms) > MaxRecentRooms {
		rooms = rooms[:MaxRecentRooms]
	}
	s.data.RecentRooms = rooms
	return s.save()
}

// Recent returns a copy of the most-recent-first room list.
func (s *Store) Recent() []RecentRoom {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RecentRoom, len(s.data.RecentRooms))
	copy(out, s.data.RecentRooms)
	return out
}

func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode client state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create client state dir: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write client state: %w", err)
	}
	return nil
}

package service

import (
	"fmt"

	"github.com/DeafHustle/vrs-live-final/internal/models"
)

// RoomRegistry 방 카탈로그. 생성 이후 읽기 전용이므로 락이 필요 없다.
type RoomRegistry struct {
	rooms map[string]models.Room
	order []string
}

// NewRoomRegistry 방 목록으로 레지스트리 생성
func NewRoomRegistry(rooms []models.Room) (*RoomRegistry, error) {
	r := &RoomRegistry{
		rooms: make(map[string]models.Room, len(rooms)),
		order: make([]string, 0, len(rooms)),
	}

	for _, room := range rooms {
		if room.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidRoom)
		}
		if room.Rate < 0 || room.Rate > MaxRoomRate {
			return nil, fmt.Errorf("%w: rate for %q must be within [0,%d]", ErrInvalidRoom, room.ID, MaxRoomRate)
		}
		if _, exists := r.rooms[room.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoom, room.ID)
		}
		if room.Name == "" {
			room.Name = room.ID
		}

		r.rooms[room.ID] = room
		r.order = append(r.order, room.ID)
	}

	return r, nil
}

// Lookup 방 조회. 없으면 ErrUnknownRoom.
func (r *RoomRegistry) Lookup(id string) (models.Room, error) {
	room, ok := r.rooms[id]
	if !ok {
		return models.Room{}, fmt.Errorf("%w: %q", ErrUnknownRoom, id)
	}
	return room, nil
}

// List 등록 순서대로 방 목록 반환
func (r *RoomRegistry) List() []models.Room {
	rooms := make([]models.Room, 0, len(r.order))
	for _, id := range r.order {
		rooms = append(rooms, r.rooms[id])
	}
	return rooms
}

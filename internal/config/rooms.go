package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/DeafHustle/vrs-live-final/internal/models"
	"github.com/spf13/viper"
)

// DefaultRooms 방 카탈로그 파일이 없을 때 사용하는 기본 방 목록
func DefaultRooms() []models.Room {
	return []models.Room{
		{ID: "vrs", Name: "VRS Call", Rate: 10},
		{ID: "vri", Name: "VRI (Hospital/School)", Rate: 20},
		{ID: "practice", Name: "ASL Practice", Rate: 6},
		{ID: "dating", Name: "Deaf Dating", Rate: 12, ManualPairing: true},
		{ID: "hangout", Name: "Hangout", Rate: 4},
	}
}

type roomsFile struct {
	Rooms []models.Room `mapstructure:"rooms"`
}

// LoadRooms YAML 카탈로그 로드. 파일이 없으면 기본 목록, 파싱 실패는 에러.
func LoadRooms(path string) ([]models.Room, error) {
	if path == "" {
		return DefaultRooms(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultRooms(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read rooms file %s: %w", path, err)
	}

	var file roomsFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to parse rooms file %s: %w", path, err)
	}
	if len(file.Rooms) == 0 {
		return nil, fmt.Errorf("rooms file %s defines no rooms", path)
	}

	return file.Rooms, nil
}

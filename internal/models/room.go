package models

// Room 요금과 표시 이름을 가진 서비스 채널
type Room struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`

	// Rate 분당 요금 (정수 단위)
	Rate int64 `json:"rate" mapstructure:"rate"`

	// ManualPairing 이 켜진 방은 대기열은 유지하되 자동 매칭하지 않는다 (예: dating)
	ManualPairing bool `json:"manualPairing" mapstructure:"manual_pairing"`
}

// AutoMatch 자동 매칭 대상 방인지 여부
func (r Room) AutoMatch() bool {
	return !r.ManualPairing
}

// RoomStatus 방 목록 API 응답 (대기 인원 포함)
type RoomStatus struct {
	Room
	WaitingRequesters int `json:"waitingRequesters"`
	WaitingProviders  int `json:"waitingProviders"`
}

package service

import (
	"fmt"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/models"
)

// 계산이 int64 범위를 넘지 않도록 하는 상한.
// 최대 Duration(약 1.5억 분) x MaxRoomRate x 100 < 2^63.
const (
	MaxRoomRate   int64 = 1_000_000
	MaxMinMinutes int64 = 24 * 60
)

// Split 정산 비율 (%). 요청자 리베이트는 나머지를 모두 가져간다.
type Split struct {
	InterpreterPct int64 `json:"interpreterPct"`
	PlatformPct    int64 `json:"platformPct"`
}

// DefaultSplit 통역사 45%, 플랫폼 45%, 요청자 10%
var DefaultSplit = Split{InterpreterPct: 45, PlatformPct: 45}

// RequesterPct 요청자 리베이트 비율
func (s Split) RequesterPct() int64 {
	return 100 - s.InterpreterPct - s.PlatformPct
}

// Validate 각 비율은 0~100, 합은 100 이하
func (s Split) Validate() error {
	if s.InterpreterPct < 0 || s.InterpreterPct > 100 || s.PlatformPct < 0 || s.PlatformPct > 100 {
		return fmt.Errorf("%w: percentages must be within [0,100]", ErrInvalidSplit)
	}
	if s.InterpreterPct+s.PlatformPct > 100 {
		return fmt.Errorf("%w: interpreter and platform exceed 100", ErrInvalidSplit)
	}
	return nil
}

// BillingEngine 분 단위 과금 계산기. 상태가 없어 동시 호출에 안전하다.
type BillingEngine struct {
	split      Split
	minMinutes int64
}

// NewBillingEngine 정산 엔진 생성. minMinutes 는 1분 이상 통화에만 적용되는 최소 과금 분.
func NewBillingEngine(split Split, minMinutes int64) (*BillingEngine, error) {
	if err := split.Validate(); err != nil {
		return nil, err
	}
	if minMinutes < 0 || minMinutes > MaxMinMinutes {
		return nil, fmt.Errorf("%w: minimum minutes must be within [0,%d]", ErrInvalidSplit, MaxMinMinutes)
	}
	return &BillingEngine{split: split, minMinutes: minMinutes}, nil
}

func (e *BillingEngine) Split() Split {
	return e.split
}

func (e *BillingEngine) MinMinutes() int64 {
	return e.minMinutes
}

// Compute 경과 시간과 분당 요금으로 정산 결과 계산
func (e *BillingEngine) Compute(elapsed time.Duration, rate int64) models.BillingResult {
	minutes := int64(elapsed / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	// 0분 통화는 과금하지 않는다
	if minutes > 0 && minutes < e.minMinutes {
		minutes = e.minMinutes
	}
	if rate < 0 {
		rate = 0
	}
	if rate > MaxRoomRate {
		rate = MaxRoomRate
	}

	total := minutes * rate
	interpreter := total * e.split.InterpreterPct / 100
	platform := total * e.split.PlatformPct / 100

	return models.BillingResult{
		ElapsedMinutes:   minutes,
		Rate:             rate,
		Total:            total,
		InterpreterShare: interpreter,
		PlatformShare:    platform,
		RequesterShare:   total - interpreter - platform,
	}
}

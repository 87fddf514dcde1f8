package idgen

import (
	"github.com/google/uuid"
)

// NewDraftID 드래프트 ID 생성 (uuid v4)
func NewDraftID() string {
	return uuid.NewString()
}

// IsValidDraftID 드래프트 ID 유효성 검사
func IsValidDraftID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

package redis

import "fmt"

// Redis Key Patterns Redis 키 패턴 상수
const (
	// 로봇 상세 캐시
	RobotDetailPattern = "robot:detail:%d"

	// 로봇 목록 캐시 (필터 키별)
	RobotListPattern = "robot:list:%s"

	// 캐시된 목록 키 집합 (무효화용)
	RobotListIndexKey = "robot:lists"
)

// KeyGenerator Redis 키 생성기
type KeyGenerator struct{}

// NewKeyGenerator 새 키 생성기 생성
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// RobotDetail 로봇 상세 키 생성
func (k *KeyGenerator) RobotDetail(robotID int64) string {
	return fmt.Sprintf(RobotDetailPattern, robotID)
}

// RobotList 로봇 목록 키 생성
func (k *KeyGenerator) RobotList(filterKey string) string {
	return fmt.Sprintf(RobotListPattern, filterKey)
}

// 전역 키 생성기
var Keys = NewKeyGenerator()

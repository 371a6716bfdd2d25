package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPaperKey is a hash of question id to candidate-facing question JSON.
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ActiveSessionKey maps a candidate's in-progress attempt at an exam to its session id.
func (r *CacheKeyStruct) ActiveSessionKey(examID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:exam:%s:active_session", candidateID, examID)
}

// SessionResultKey holds a graded result until the worker persists it.
func (r *CacheKeyStruct) SessionResultKey(sessionID string) string {
	return fmt.Sprintf("session:%s:result", sessionID)
}

// SessionPresenceKey is refreshed while a candidate's stream is connected.
func (r *CacheKeyStruct) SessionPresenceKey(sessionID string) string {
	return fmt.Sprintf("session:%s:presence", sessionID)
}

var CacheKey = NewCacheKeyStruct()

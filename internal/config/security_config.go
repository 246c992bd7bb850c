package config

import "time"

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetMaxSessions() int
	GetAuthStateStaleAfter() time.Duration
	GetAuthStateRetries() int
	GetAuthFlowTimeout() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetMaxSessionAge() time.Duration {
	return 8 * time.Hour // One working day
}

func (Security) GetMaxSessions() int {
	return 10000
}

func (Security) GetAuthStateStaleAfter() time.Duration {
	return 5 * time.Minute
}

func (Security) GetAuthStateRetries() int {
	return 1
}

func (Security) GetAuthFlowTimeout() time.Duration {
	return 10 * time.Minute
}

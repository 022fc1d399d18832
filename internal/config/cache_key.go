package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// RecordKey returns the key holding one stored record
func (r *CacheKeyStruct) RecordKey(entityType, id string) string {
	return fmt.Sprintf("record:%s:%s", entityType, id)
}

// RecordIndexKey returns the sorted set of record ids for an entity type
func (r *CacheKeyStruct) RecordIndexKey(entityType string) string {
	return fmt.Sprintf("record:%s:ids", entityType)
}

// RecordSeqKey returns the insertion sequence counter for an entity type
func (r *CacheKeyStruct) RecordSeqKey(entityType string) string {
	return fmt.Sprintf("record:%s:seq", entityType)
}

// CreatePaperRateKey returns the fixed-window counter for a user's paper creations
func (r *CacheKeyStruct) CreatePaperRateKey(userUID string, window int64) string {
	return fmt.Sprintf("ratelimit:create_paper:%s:%d", userUID, window)
}

// PaperMonitorChannel returns the Redis PubSub channel for paper lifecycle events
func (r *CacheKeyStruct) PaperMonitorChannel() string {
	return "papers:monitor"
}

var CacheKey = NewCacheKeyStruct()

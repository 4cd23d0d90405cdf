package database

import (
	"errors"
	"sync"
)

var (
	postgresUserReader  func() UserReader
	postgresUserWriter  func() UserWriter
	postgresInitialized bool
	providerMu          sync.RWMutex
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(reader func() UserReader, writer func() UserWriter) {
	providerMu.Lock()
	defer providerMu.Unlock()
	postgresUserReader = reader
	postgresUserWriter = writer
	postgresInitialized = true
}

// ResetBackend forgets the registered backend.
func ResetBackend() {
	providerMu.Lock()
	defer providerMu.Unlock()
	postgresUserReader = nil
	postgresUserWriter = nil
	postgresInitialized = false
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return postgresInitialized
}

// GetUserReader returns a UserReader from the PostgreSQL backend
func GetUserReader() (UserReader, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !postgresInitialized {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresUserReader == nil {
		return nil, errors.New("PostgreSQL user reader not registered")
	}
	return postgresUserReader(), nil
}

// GetUserWriter returns a UserWriter from the PostgreSQL backend
func GetUserWriter() (UserWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !postgresInitialized {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresUserWriter == nil {
		return nil, errors.New("PostgreSQL user writer not registered")
	}
	return postgresUserWriter(), nil
}

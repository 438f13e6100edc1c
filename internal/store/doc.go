// Package store defines the persistent row types and repository interfaces
// shared by the discovery engine, the lifecycle maintainer and the read-only
// API. Implementations live in internal/storage/postgres.
package store

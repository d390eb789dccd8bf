// Package storage provides content-addressed replication targets for contract
// states and change sets.
//
// Backends are selected by URI:
//
//	file:///var/lib/pdo/states
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=http://minio:9000
//	ipfs://localhost:5001/pdo
//	vault://vault.example.com:8200/secret/pdo?token=...&tls=true
//
// Content is addressed by the SHA-256 of its bytes and namespaced by content
// type, so a raw state and a change set never collide:
//
//	<base>/state/<hex id>
//	<base>/changeset/<hex id>
//
// MultiStorageBackend fans a store out to every available backend and fetches
// from the first one that has the content. A store succeeds if any backend
// accepted it; per-backend failures are aggregated with go-multierror.
package storage

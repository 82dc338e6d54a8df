package domain

// ConnID identifies one live transport session. It exists from
// connection-open to connection-close and is never persisted.
// A ConnID maps to at most one identity at any instant.
type ConnID string

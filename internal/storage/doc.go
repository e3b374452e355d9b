package storage

// Package storage is the persistence gateway for the bot's four entity
// collections (posts, schedules, conversation states, destinations) and
// the singleton footer document.
//
// Backends:
//   - mongo:  document store (default for deployments)
//   - memory: in-process maps (dev/testing)
//   - sqlite: single-file database (optional build tag)

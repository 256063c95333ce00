// Package service coordinates the matching kernel with durability and
// delivery. OrderService is the ONLY write entry point: it logs each
// command to the entry WAL, applies it to the engine, and fans the
// resulting trades out to the in-memory log, the outbox, the live feed
// and the archive.
package service

// Package report generates a static HTML overview of provisioning history and snapshots.
// Following Dave Cheney's principle: "Accept interfaces, return structs"
package report

import "github.com/envrun-project/envrun/internal/journal"

// JournalReader abstracts database operations for reading report data.
// This interface enables testability by allowing mock implementations.
type JournalReader interface {
	// ListAll retrieves all provision records, ordered by provision time descending.
	ListAll() ([]*journal.Provision, error)

	// ListAllSnapshots retrieves all snapshots, ordered by creation time descending.
	ListAllSnapshots() ([]journal.Snapshot, error)
}

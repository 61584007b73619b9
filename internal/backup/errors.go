package backup

import "errors"

// Domain errors for the backup package.
var (
	// ErrBackupNotFound is returned when no backup matches the id or name.
	ErrBackupNotFound = errors.New("backup: not found")

	// ErrInvalidBackupType is returned for an unknown backup type name.
	ErrInvalidBackupType = errors.New("backup: invalid backup type")

	// ErrInvalidBackup is returned when a backup payload lacks the cards
	// or logs lists.
	ErrInvalidBackup = errors.New("backup: invalid backup payload")

	// ErrPartialBackup is returned when only one of the two copies was
	// written. The written copy is kept.
	ErrPartialBackup = errors.New("backup: only one copy written")

	// ErrQueueTimeout is returned when a hand-off did not finish within
	// the configured timeout. The backup may still complete.
	ErrQueueTimeout = errors.New("backup: hand-off timed out")

	// ErrQueueClosed is returned when submitting to a stopped queue.
	ErrQueueClosed = errors.New("backup: queue closed")

	// ErrInvalidFileName is returned for file names that are not a plain
	// base name.
	ErrInvalidFileName = errors.New("backup: invalid file name")
)

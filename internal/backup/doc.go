// Package backup snapshots the card registry and access log, prunes old
// snapshots and restores them.
//
// Every backup is a Record holding the full card and log collections. It is
// written twice: as a row in the backups table and as a file in a FileStore
// (a local directory or an S3 bucket, optionally zstd-compressed). The two
// writes are independent and best-effort; a failure in one is reported as
// ErrPartialBackup and the other copy is kept. The file copy lets
// RestoreFromFile recover when the database itself is lost.
//
// Two triggers produce backups:
//
//   - Scheduler polls the clock once a minute and takes daily, weekly and
//     monthly backups at the configured slot, followed by retention cleanup.
//   - Queue receives card add/remove notifications from the MQTT callback
//     path and hands them to a single worker, waiting at most the hand-off
//     timeout for each to finish.
//
// Retention: card_add and card_remove keep the newest N records; daily,
// weekly and monthly records expire by age; manual backups are kept until
// removed by hand.
//
// # Usage
//
//	files, err := backup.NewFileStore(cfg.Backup)
//	mgr := backup.NewManager(cardRepo, backup.NewSQLiteRepository(db), files, cfg.Backup)
//
//	queue := backup.NewQueue(mgr, cfg.Backup)
//	queue.Start(ctx)
//	tracker := card.NewTracker(cardRepo, queue)
//
//	sched, err := backup.NewScheduler(mgr, cfg.Backup.Schedule)
//	sched.Start(ctx)
//	defer sched.Wait()
package backup

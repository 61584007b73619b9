// Package security implements the intrusion detector and its event store.
//
// Two fixed rules run on every tag reading, after the reading is logged:
//
//   - rate: more than threshold plain readings of the same card inside the
//     trailing window (default 5 in 5 minutes) stores a suspicious_activity
//     event carrying the count. Admin commands in the access log never count.
//   - existence: a reading of an unregistered card stores an
//     unauthorized_attempt event.
//
// The rules are independent, so one reading may yield both events. The
// detector keeps no state between calls and swallows its own failures so
// that the access response path is never held up.
package security

// Package card owns the RFID card registry and the access log.
//
// The Tracker decides authorization (a card is authorized iff it is
// registered), appends every reading and admin command to the access log,
// and keeps each card's usage counters. Registry mutations are reported to
// a ChangeNotifier, which the backup package implements to snapshot the
// registry around every add and remove.
//
// Operations return ErrCardExists, ErrCardNotFound or ErrInvalidCardID;
// the router turns them into error responses for the device.
package card

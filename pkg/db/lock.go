package db

import "gorm.io/gorm"

// ForUpdate appends a row-lock clause to a raw SELECT.
//
// SQLite has no row locks. Connections opened through Dialect begin every
// transaction IMMEDIATE, so the database write lock taken at BEGIN
// serializes the same critical sections.
func ForUpdate(tx *gorm.DB, query string) string {
	if tx == nil || tx.Dialector == nil {
		return query
	}
	switch tx.Dialector.Name() {
	case "sqlite":
		return query
	default:
		return query + " FOR UPDATE"
	}
}

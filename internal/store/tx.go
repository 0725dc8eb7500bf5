package store

import (
	"database/sql"

	"gorm.io/gorm/clause"
)

// txOptions pins read-committed isolation; the account row lock (see
// lockingClause) prevents lost updates across concurrent closes without
// relying on stricter serializable retries.
func txOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

// lockingClause issues SELECT ... FOR UPDATE, the row-level lock held on
// the Account row during balance updates.
func lockingClause() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

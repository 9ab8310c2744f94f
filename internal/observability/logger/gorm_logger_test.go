package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationAndTableFromSQL(t *testing.T) {
	cases := []struct {
		sql   string
		op    string
		table string
	}{
		{"SELECT id FROM event_ledgers WHERE event_id = ?", "SELECT", "event_ledgers"},
		{"INSERT INTO payout_requests (id) VALUES (?)", "INSERT", "payout_requests"},
		{"UPDATE ticket_categories SET sold = ? WHERE id = ? AND version = ?", "UPDATE", "ticket_categories"},
		{"", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op := operationFromSQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, tableFromSQL(tc.sql, op), tc.sql)
	}
}

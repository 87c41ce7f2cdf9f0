package main

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/http/middleware"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/audit"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/webhooks"
)

// Every column a model writes must exist in the bootstrap DDL, or inserts
// against a provisioned database fail at runtime.
func TestDDLCoversModelColumns(t *testing.T) {
	models := []struct {
		table string
		model any
	}{
		{"payments", &payments.Payment{}},
		{"tickets", &payments.Ticket{}},
		{"payouts", &payouts.Payout{}},
		{"connect_accounts", &connect.Account{}},
		{"provider_events", &webhooks.ProviderEvent{}},
		{"audit_logs", &audit.Entry{}},
		{"sessions", &middleware.Session{}},
	}

	cache := &sync.Map{}
	for _, m := range models {
		t.Run(m.table, func(t *testing.T) {
			parsed, err := schema.Parse(m.model, cache, schema.NamingStrategy{})
			require.NoError(t, err)
			require.Equal(t, m.table, parsed.Table)

			block := tableBlock(t, m.table)
			for col := range parsed.FieldsByDBName {
				assert.Containsf(t, block, "\n\t  "+col+" ",
					"table %s is missing column %s", m.table, col)
			}
		})
	}
}

func tableBlock(t *testing.T, table string) string {
	t.Helper()
	marker := "CREATE TABLE IF NOT EXISTS " + table + " ("
	start := strings.Index(ddl, marker)
	require.GreaterOrEqual(t, start, 0, "no CREATE TABLE for %s", table)
	rest := ddl[start:]
	end := strings.Index(rest, ";")
	require.Greater(t, end, 0)
	return rest[:end]
}

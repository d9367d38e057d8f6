package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeo4jSchemaKeepsAccountIDsUnique(t *testing.T) {
	var found bool
	for _, stmt := range neo4jSchema {
		if strings.Contains(stmt, "FOR (a:Account) REQUIRE a.id IS UNIQUE") {
			found = true
			require.Contains(t, stmt, "IF NOT EXISTS")
		}
	}
	require.True(t, found, "Account.id needs a uniqueness constraint for MERGE to be race free")
}

package repository

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `john\_doe`, escapeLike("john_doe"))
	require.Equal(t, `100\%`, escapeLike("100%"))
	require.Equal(t, `a\\b`, escapeLike(`a\b`))
	require.Equal(t, "plain", escapeLike("plain"))
}

func TestTranslateDuplicate(t *testing.T) {
	err := translate(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey))
	require.ErrorIs(t, err, ErrDuplicate)

	other := fmt.Errorf("boom")
	require.Equal(t, other, translate(other))
}

package conventions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/valtask/internal/conventions"
)

func TestDBPath(t *testing.T) {
	assert.Equal(t, "/home/ada/.valtask/valtask.db", conventions.DBPath("/home/ada"))
}

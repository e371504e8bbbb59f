package memory

import (
	"testing"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/repotest"
)

func TestMemoryStore(t *testing.T) {
	repotest.Run(t, func(*testing.T) *repository.Store {
		return NewStore()
	})
}

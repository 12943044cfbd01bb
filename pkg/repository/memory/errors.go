package memory

import "github.com/secmon-lab/utmcraft/pkg/domain/interfaces"

var (
	ErrNotFound = interfaces.ErrNotFound
	ErrConflict = interfaces.ErrConflict
)

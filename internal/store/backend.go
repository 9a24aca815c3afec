package store

import (
	"context"
	"errors"
)

// Backend persiste el blob serializado de la sesión.
//
// Drivers:
//   - file: archivo JSON local (default, sobrevive reinicios)
//   - redis: key única en Redis (sesiones compartidas entre procesos)
//   - memory: para tests
type Backend interface {
	// Read devuelve el blob persistido. ErrNotFound si no hay.
	Read(ctx context.Context) ([]byte, error)

	// Write reemplaza el blob completo de forma atómica.
	Write(ctx context.Context, data []byte) error

	// Delete elimina el blob. Idempotente.
	Delete(ctx context.Context) error
}

// ErrNotFound indica que no hay sesión persistida.
var ErrNotFound = errors.New("store: no persisted session")

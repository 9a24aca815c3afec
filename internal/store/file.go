package store

import (
	"context"
	"os"

	"github.com/parishdesk/authgate/internal/util/atomicwrite"
)

// fileBackend persiste la sesión en un archivo JSON local.
type fileBackend struct {
	path string
}

// NewFile crea un backend de archivo en path.
// El archivo se escribe con permisos 0600: contiene un bearer token.
func NewFile(path string) Backend {
	return &fileBackend{path: path}
}

func (f *fileBackend) Read(ctx context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (f *fileBackend) Write(ctx context.Context, data []byte) error {
	return atomicwrite.AtomicWriteFile(f.path, data, 0600)
}

func (f *fileBackend) Delete(ctx context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

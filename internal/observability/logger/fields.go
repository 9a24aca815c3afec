package logger

import (
	"time"

	"go.uber.org/zap"

	"github.com/parishdesk/authgate/internal/util"
)

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// TenantID crea un campo para el ID del tenant (iglesia).
func TenantID(v string) zap.Field {
	return zap.String("tenant_id", v)
}

// UserID crea un campo para el ID del usuario.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// Email crea un campo para el email, enmascarado para no filtrar PII en logs.
func Email(v string) zap.Field {
	return zap.String("email", util.MaskEmail(v))
}

// Subject crea un campo para el subject del identity provider.
func Subject(v string) zap.Field {
	return zap.String("subject", v)
}

// AttemptID crea un campo para el ID del intento de handshake.
func AttemptID(v string) zap.Field {
	return zap.String("attempt_id", v)
}

// State crea un campo para el estado del handshake.
func State(v string) zap.Field {
	return zap.String("state", v)
}

// PersonID crea un campo para el ID de la persona candidata (claim flow).
func PersonID(v string) zap.Field {
	return zap.String("person_id", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (coordinator, client, store, flow).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Key crea un campo genérico para una clave.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

package invoicing

import "github.com/invoo/backend/internal/infrastructure/verifactu"

// remoteStatusAliases maps every status token the remote API has been seen
// to emit, Spanish labels and webhook estado values included, onto the
// canonical lifecycle statuses stored locally.
var remoteStatusAliases = map[string]string{
	"Pendiente":            verifactu.StatusPending,
	"Procesando":           verifactu.StatusProcessing,
	"Enviado":              verifactu.StatusSubmitted,
	"Correcta":             verifactu.StatusAccepted,
	"Rechazada":            verifactu.StatusRejected,
	"Anulada":              verifactu.StatusCancelled,
	"Error":                verifactu.StatusError,
	"correct":              verifactu.StatusAccepted,
	"accepted_with_errors": verifactu.StatusAccepted,
	"incorrect":            verifactu.StatusRejected,
}

// NormalizeStatus maps a remote status token to its canonical form. Canonical
// statuses pass through unchanged; anything unrecognized maps to error so a
// new remote vocabulary never silently parks an invoice as pending.
func NormalizeStatus(remote string) string {
	if canonical, ok := remoteStatusAliases[remote]; ok {
		return canonical
	}
	if verifactu.IsTerminal(remote) || remote == verifactu.StatusPending ||
		remote == verifactu.StatusProcessing || remote == verifactu.StatusSubmitted {
		return remote
	}
	return verifactu.StatusError
}

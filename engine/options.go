package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// MinimumMTU is the protocol floor obex_set_mtu enforces on both MTU-RX
// and MTU-TX-max (SPEC_FULL.md §9: the original source applies the 255
// floor symmetrically, not just to MTU-TX-max as a literal reading of
// spec.md §6 alone might suggest).
const MinimumMTU = 255

// Options configures a new Engine: the init flags and MTU bounds spec.md
// §6 lists, plus an optional logger.
type Options struct {
	KeepServer  bool
	FilterHint  bool
	FilterIAS   bool
	CloseOnExec bool
	NonBlocking bool

	MTURX    int `validate:"required,gte=255"`
	MTUTXMax int `validate:"required,gte=255"`

	Logger *zap.Logger
}

var validate = validator.New()

// DefaultOptions returns Options at the protocol-minimum MTU on both
// sides and logging disabled.
func DefaultOptions() Options {
	return Options{MTURX: MinimumMTU, MTUTXMax: MinimumMTU}
}

func (o Options) validateSelf() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("engine: invalid options: %w", err)
	}
	return nil
}

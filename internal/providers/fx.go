package providers

import (
	"github.com/smallbiznis/payline/internal/providers/email"
	"github.com/smallbiznis/payline/internal/providers/messaging"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	messaging.Module,
)

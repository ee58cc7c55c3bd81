package gateway

import "go.uber.org/fx"

var Module = fx.Module("payment.gateway",
	fx.Provide(NewMidtransClient),
)

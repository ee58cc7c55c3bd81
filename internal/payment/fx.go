package payment

import (
	"github.com/smallbiznis/payline/internal/payment/gateway"
	"github.com/smallbiznis/payline/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	gateway.Module,
	fx.Provide(service.NewService),
)

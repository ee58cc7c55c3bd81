// The scheduler app runs the dunning batch without the HTTP surface, for
// deployments that separate the callback server from scheduled work.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payline/internal/clock"
	"github.com/smallbiznis/payline/internal/config"
	"github.com/smallbiznis/payline/internal/customer"
	"github.com/smallbiznis/payline/internal/dunning"
	"github.com/smallbiznis/payline/internal/jobs"
	"github.com/smallbiznis/payline/internal/ledger"
	"github.com/smallbiznis/payline/internal/logger"
	"github.com/smallbiznis/payline/internal/migration"
	"github.com/smallbiznis/payline/internal/notification"
	"github.com/smallbiznis/payline/internal/observability/metrics"
	"github.com/smallbiznis/payline/internal/providers"
	"github.com/smallbiznis/payline/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		metrics.Module,

		customer.Module,
		ledger.Module,
		providers.Module,
		jobs.Module,
		notification.Module,
		dunning.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}

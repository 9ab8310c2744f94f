package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/checkout"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/event"
	"github.com/smallbiznis/boxoffice/internal/inventory"
	"github.com/smallbiznis/boxoffice/internal/ledger"
	"github.com/smallbiznis/boxoffice/internal/migration"
	"github.com/smallbiznis/boxoffice/internal/observability"
	"github.com/smallbiznis/boxoffice/internal/outbox"
	"github.com/smallbiznis/boxoffice/internal/payout"
	"github.com/smallbiznis/boxoffice/internal/promocode"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"github.com/smallbiznis/boxoffice/internal/scheduler"
	"github.com/smallbiznis/boxoffice/internal/server"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		outbox.Module,

		// Finance domains
		event.Module,
		inventory.Module,
		ledger.Module,
		payout.Module,
		promocode.Module,
		checkout.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

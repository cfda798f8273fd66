package account

import (
	"github.com/smallbiznis/officeflow/internal/account/repository"
	"github.com/smallbiznis/officeflow/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewLedger),
)

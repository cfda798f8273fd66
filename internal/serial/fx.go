package serial

import (
	"github.com/smallbiznis/officeflow/internal/serial/repository"
	"github.com/smallbiznis/officeflow/internal/serial/service"
	"go.uber.org/fx"
)

var Module = fx.Module("serial.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

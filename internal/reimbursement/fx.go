package reimbursement

import (
	"github.com/smallbiznis/officeflow/internal/reimbursement/repository"
	"github.com/smallbiznis/officeflow/internal/reimbursement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reimbursement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

package settlement

import (
	receiptdomain "github.com/smallbiznis/officeflow/internal/receipt/domain"
	reimbursementdomain "github.com/smallbiznis/officeflow/internal/reimbursement/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.engine",
	fx.Provide(New),
	fx.Provide(
		func(e *Engine) receiptdomain.Settler { return e },
		func(e *Engine) reimbursementdomain.Payer { return e },
	),
)

package product

import (
	"go.uber.org/zap"

	"storefront/internal/inventory"
	"storefront/internal/storage"
)

func NewModule(tx storage.TxManager, ledger *inventory.Ledger, logger *zap.Logger) *Controller {
	svc := NewService(tx, ledger)
	uc := NewSearchUseCase(svc)
	return NewController(uc, logger)
}

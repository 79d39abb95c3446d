package workflows

import "github.com/vextrus/vextrus-erp-sub018/pkg/workflow"

// Register adds all three process definitions to the registry.
func Register(defs *workflow.Registry, cfg Config) {
	defs.MustRegister(TypePurchaseOrderApproval, PurchaseOrderApproval(cfg))
	defs.MustRegister(TypeInvoiceApproval, InvoiceApproval(cfg))
	defs.MustRegister(TypeEmployeeOnboarding, EmployeeOnboarding(cfg))
}

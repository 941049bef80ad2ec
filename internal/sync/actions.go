package sync

// Action identifies which handler replays a queued operation. The catalogue
// mirrors the business mutations the client can defer while offline.
type Action string

const (
	ActionSaveSale            Action = "saveSale"
	ActionSavePurchase        Action = "savePurchase"
	ActionSaveCustomer        Action = "saveCustomer"
	ActionSaveSupplier        Action = "saveSupplier"
	ActionSaveVoucher         Action = "saveVoucher"
	ActionSaveExpense         Action = "saveExpense"
	ActionSaveCategory        Action = "saveCategory"
	ActionDeleteRecord        Action = "deleteRecord"
	ActionReturnSale          Action = "returnSale"
	ActionReturnPurchase      Action = "returnPurchase"
	ActionUpdateSettings      Action = "updateSettings"
	ActionSaveWaste           Action = "saveWaste"
	ActionSaveOpeningBalance  Action = "saveOpeningBalance"
	ActionSaveExpenseTemplate Action = "saveExpenseTemplate"
	ActionSaveNotification    Action = "saveNotification"
)

var knownActions = map[Action]struct{}{
	ActionSaveSale:            {},
	ActionSavePurchase:        {},
	ActionSaveCustomer:        {},
	ActionSaveSupplier:        {},
	ActionSaveVoucher:         {},
	ActionSaveExpense:         {},
	ActionSaveCategory:        {},
	ActionDeleteRecord:        {},
	ActionReturnSale:          {},
	ActionReturnPurchase:      {},
	ActionUpdateSettings:      {},
	ActionSaveWaste:           {},
	ActionSaveOpeningBalance:  {},
	ActionSaveExpenseTemplate: {},
	ActionSaveNotification:    {},
}

// Known reports whether the action belongs to the replay catalogue.
func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// Actions returns the full replay catalogue.
func Actions() []Action {
	out := make([]Action, 0, len(knownActions))
	for a := range knownActions {
		out = append(out, a)
	}
	return out
}

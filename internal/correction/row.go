package correction

// Printed choices for the receipt-printed radio group.
const (
	PrintedYes = "Yes"
	PrintedNo  = "No"
)

// Field is one text input of a correction row.
type Field struct {
	Value    string
	Disabled bool
}

// Row holds the form state of one receipt on the correction page. A Row
// belongs to a single UI event loop and is not safe for concurrent use.
type Row struct {
	ReceiptID int64
	MandiID   int64

	Printed                string
	Mobile                 Field
	MobileNotAvailable     bool
	TraderCode             Field
	TraderCodeNotAvailable bool
	TraderName             Field

	SubmitDisabled bool

	lookup TraderLookup
}

func NewRow(receiptID int64, mandiID int64, lookup TraderLookup) *Row {
	return &Row{ReceiptID: receiptID, MandiID: mandiID, lookup: lookup}
}

// SetMobileNotAvailable clears and disables the mobile input when checked
// and re-enables it empty when unchecked.
func (r *Row) SetMobileNotAvailable(checked bool) {
	r.MobileNotAvailable = checked
	r.Mobile = Field{Disabled: checked}
}

// SetTraderCodeNotAvailable does the same for trader code and trader name.
func (r *Row) SetTraderCodeNotAvailable(checked bool) {
	r.TraderCodeNotAvailable = checked
	r.TraderCode = Field{Disabled: checked}
	r.TraderName = Field{Disabled: checked}
}

// InputTraderCode records a trader code keystroke. A known (code, mandi)
// fills and locks the trader name; anything else clears and unlocks it.
func (r *Row) InputTraderCode(code string) {
	if r.TraderCode.Disabled {
		return
	}
	r.TraderCode.Value = code
	if r.lookup != nil {
		if t, ok := r.lookup.Lookup(code, r.MandiID); ok {
			r.TraderName = Field{Value: t.Name, Disabled: true}
			return
		}
	}
	r.TraderName = Field{}
}

func (r *Row) InputMobile(v string) {
	if r.Mobile.Disabled {
		return
	}
	r.Mobile.Value = v
}

func (r *Row) InputTraderName(v string) {
	if r.TraderName.Disabled {
		return
	}
	r.TraderName.Value = v
}

func (r *Row) SelectPrinted(choice string) {
	r.Printed = choice
}

// view is the activation handed to the rule programs.
func (r *Row) view() map[string]any {
	return map[string]any{
		"printed":         r.Printed,
		"mobile":          r.Mobile.Value,
		"mobile_na":       r.MobileNotAvailable,
		"mobile_disabled": r.Mobile.Disabled,
		"code":            r.TraderCode.Value,
		"code_na":         r.TraderCodeNotAvailable,
		"code_disabled":   r.TraderCode.Disabled,
		"name":            r.TraderName.Value,
	}
}

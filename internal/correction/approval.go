package correction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ApprovalPath is the endpoint the receipt list posts approve/reject to.
const ApprovalPath = "/admin/update_approval_status"

const (
	StatusApprove = "approve"
	StatusReject  = "reject"
)

const (
	MsgApproved = "Receipt approved"
	MsgRejected = "Receipt rejected"
)

// Approval is a decoded approve/reject decision for one receipt.
type Approval struct {
	SaleReceiptID int64
	Approved      bool
}

// Message is the success text shown after the decision is stored.
func (a Approval) Message() string {
	if a.Approved {
		return MsgApproved
	}
	return MsgRejected
}

// Action names the decision in audit rows.
func (a Approval) Action() string {
	if a.Approved {
		return "receipt.approve"
	}
	return "receipt.reject"
}

// ParseApproval decodes {"sale_receipt_id": ..., "status": ...}. Status is
// "approve"/"approved" or "reject"/"rejected" in any case, or a JSON bool.
func ParseApproval(body []byte) (Approval, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Approval{}, fmt.Errorf("correction: decode approval: %w", err)
	}
	if raw == nil {
		return Approval{}, errors.New("correction: empty payload")
	}

	id, err := asInt64(raw[KeySaleReceiptID])
	if err != nil {
		return Approval{}, fmt.Errorf("correction: %s: %w", KeySaleReceiptID, err)
	}

	a := Approval{SaleReceiptID: id}
	switch s := raw["status"].(type) {
	case bool:
		a.Approved = s
	case string:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case StatusApprove, "approved":
			a.Approved = true
		case StatusReject, "rejected":
			a.Approved = false
		default:
			return Approval{}, fmt.Errorf("correction: unknown status %q", s)
		}
	default:
		return Approval{}, errors.New("correction: status required")
	}
	return a, nil
}

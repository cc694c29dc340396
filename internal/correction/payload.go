package correction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Payload keys posted to the update endpoint.
const (
	KeyMobileNotAvailable     = "receipt_owner_mobile_number_not_available"
	KeyOwnerMobileNumber      = "owner_mobile_number"
	KeyTraderCodeNotAvailable = "trader_code_not_available"
	KeyTraderCode             = "trader_code"
	KeyTraderName             = "trader_name"
	KeyReceiptPrinted         = "receipt_printed"
	KeySaleReceiptID          = "sale_receipt_id"
)

// Payload is the flat record sent for one row.
type Payload map[string]any

// BuildPayload flattens a row: free text upper-cased, checkbox flags as
// booleans. A field whose "not available" flag is set is left out.
func BuildPayload(r *Row) Payload {
	p := Payload{
		KeyMobileNotAvailable:     r.MobileNotAvailable,
		KeyTraderCodeNotAvailable: r.TraderCodeNotAvailable,
		KeyReceiptPrinted:         strings.ToUpper(r.Printed),
		KeySaleReceiptID:          r.ReceiptID,
	}
	if !r.MobileNotAvailable {
		p[KeyOwnerMobileNumber] = strings.ToUpper(r.Mobile.Value)
	}
	if !r.TraderCodeNotAvailable {
		p[KeyTraderCode] = strings.ToUpper(r.TraderCode.Value)
		p[KeyTraderName] = strings.ToUpper(r.TraderName.Value)
	}
	return p
}

// Update is a decoded correction as received by the server.
type Update struct {
	SaleReceiptID          int64
	ReceiptPrinted         string
	OwnerMobileNumber      string
	MobileNotAvailable     bool
	TraderCode             string
	TraderCodeNotAvailable bool
	TraderName             string
}

// ParseUpdate decodes a JSON payload. Flags accept JSON booleans or the
// strings "true"/"on"; the receipt id accepts a number or a numeric string.
func ParseUpdate(body []byte) (Update, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Update{}, fmt.Errorf("correction: decode payload: %w", err)
	}
	if raw == nil {
		return Update{}, errors.New("correction: empty payload")
	}

	var u Update
	id, err := asInt64(raw[KeySaleReceiptID])
	if err != nil {
		return Update{}, fmt.Errorf("correction: %s: %w", KeySaleReceiptID, err)
	}
	u.SaleReceiptID = id

	switch strings.ToUpper(strings.TrimSpace(asString(raw[KeyReceiptPrinted]))) {
	case "YES":
		u.ReceiptPrinted = PrintedYes
	case "NO":
		u.ReceiptPrinted = PrintedNo
	}
	u.MobileNotAvailable = asBool(raw[KeyMobileNotAvailable])
	u.TraderCodeNotAvailable = asBool(raw[KeyTraderCodeNotAvailable])
	if !u.MobileNotAvailable {
		u.OwnerMobileNumber = strings.TrimSpace(asString(raw[KeyOwnerMobileNumber]))
	}
	if !u.TraderCodeNotAvailable {
		u.TraderCode = strings.TrimSpace(asString(raw[KeyTraderCode]))
		u.TraderName = strings.ToUpper(strings.TrimSpace(asString(raw[KeyTraderName])))
	}
	return u, nil
}

func (u Update) view() map[string]any {
	return map[string]any{
		"printed":         u.ReceiptPrinted,
		"mobile":          u.OwnerMobileNumber,
		"mobile_na":       u.MobileNotAvailable,
		"mobile_disabled": u.MobileNotAvailable,
		"code":            u.TraderCode,
		"code_na":         u.TraderCodeNotAvailable,
		"code_disabled":   u.TraderCodeNotAvailable,
		"name":            u.TraderName,
	}
}

// PrintedFlag is the stored form of the printed choice.
func (u Update) PrintedFlag() bool {
	return u.ReceiptPrinted == PrintedYes
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "1", "yes":
			return true
		}
	}
	return false
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int64(t)) || t <= 0 {
			return 0, errors.New("must be a positive integer")
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil || n <= 0 {
			return 0, errors.New("must be a positive integer")
		}
		return n, nil
	case nil:
		return 0, errors.New("required")
	default:
		return 0, errors.New("must be a positive integer")
	}
}

package correction

import "testing"

func TestParseApproval(t *testing.T) {
	cases := []struct {
		body     string
		id       int64
		approved bool
	}{
		{body: `{"sale_receipt_id": 7, "status": "approve"}`, id: 7, approved: true},
		{body: `{"sale_receipt_id": "8", "status": "Approved"}`, id: 8, approved: true},
		{body: `{"sale_receipt_id": 9, "status": "REJECT"}`, id: 9},
		{body: `{"sale_receipt_id": 10, "status": " rejected "}`, id: 10},
		{body: `{"sale_receipt_id": 11, "status": true}`, id: 11, approved: true},
		{body: `{"sale_receipt_id": 12, "status": false}`, id: 12},
	}
	for _, tc := range cases {
		a, err := ParseApproval([]byte(tc.body))
		if err != nil {
			t.Fatalf("%s: %v", tc.body, err)
		}
		if a.SaleReceiptID != tc.id || a.Approved != tc.approved {
			t.Fatalf("%s: got=%+v", tc.body, a)
		}
	}
}

func TestParseApproval_Errors(t *testing.T) {
	for _, body := range []string{
		`nope`,
		`null`,
		`{"status": "approve"}`,
		`{"sale_receipt_id": 0, "status": "approve"}`,
		`{"sale_receipt_id": 7}`,
		`{"sale_receipt_id": 7, "status": "maybe"}`,
		`{"sale_receipt_id": 7, "status": 1}`,
	} {
		if _, err := ParseApproval([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", body)
		}
	}
}

func TestApproval_MessageAndAction(t *testing.T) {
	approve := Approval{SaleReceiptID: 1, Approved: true}
	if approve.Message() != MsgApproved || approve.Action() != "receipt.approve" {
		t.Fatalf("approve=%q %q", approve.Message(), approve.Action())
	}
	reject := Approval{SaleReceiptID: 1}
	if reject.Message() != MsgRejected || reject.Action() != "receipt.reject" {
		t.Fatalf("reject=%q %q", reject.Message(), reject.Action())
	}
}

package correction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// UpdatePath is the endpoint corrections are posted to.
const UpdatePath = "/admin/update-receipt-data"

// MsgProvideMobile is the success message that asks the operator for the
// owner's mobile number instead of reloading.
const MsgProvideMobile = "please provide receipt owner mobile number"

type Outcome int

const (
	// OutcomeNone: the server answered without success or error.
	OutcomeNone Outcome = iota
	// OutcomeBlocked: a gate failed; nothing was sent.
	OutcomeBlocked
	// OutcomePromptMobile: saved, alert asking for the mobile number, no reload.
	OutcomePromptMobile
	// OutcomeReload: saved, reload the page.
	OutcomeReload
	// OutcomeAlertReload: the server reported an error; alert then reload.
	OutcomeAlertReload
	// OutcomeAlert: the request failed in transport; alert only.
	OutcomeAlert
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBlocked:
		return "blocked"
	case OutcomePromptMobile:
		return "prompt_mobile"
	case OutcomeReload:
		return "reload"
	case OutcomeAlertReload:
		return "alert_reload"
	case OutcomeAlert:
		return "alert"
	default:
		return "none"
	}
}

// Result is what the page does after a submit click.
type Result struct {
	Outcome Outcome
	Alert   string
	Payload Payload
}

// Response is the update endpoint's JSON body.
type Response struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Submitter drives one submit click: gate, post once, map the answer.
type Submitter struct {
	client    httpDoer
	endpoint  string
	validator *Validator
}

func NewSubmitter(client httpDoer, baseURL string, validator *Validator) *Submitter {
	if client == nil {
		client = http.DefaultClient
	}
	if validator == nil {
		validator = MustDefaultValidator()
	}
	return &Submitter{
		client:    client,
		endpoint:  strings.TrimRight(baseURL, "/") + UpdatePath,
		validator: validator,
	}
}

// Submit disables the row's submit control for the duration. It is
// re-enabled only when a gate blocks the submit: successful saves reload
// the page, and a transport failure leaves it disabled.
func (s *Submitter) Submit(ctx context.Context, row *Row) Result {
	row.SubmitDisabled = true

	if err := s.validator.Check(row.view()); err != nil {
		row.SubmitDisabled = false
		return Result{Outcome: OutcomeBlocked, Alert: alertText(err)}
	}
	payload := BuildPayload(row)

	body, err := json.Marshal(payload)
	if err != nil {
		row.SubmitDisabled = false
		return Result{Outcome: OutcomeBlocked, Alert: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeAlert, Alert: err.Error(), Payload: payload}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeAlert, Alert: err.Error(), Payload: payload}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Outcome: OutcomeAlert, Alert: err.Error(), Payload: payload}
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{Outcome: OutcomeAlert, Alert: fmt.Sprintf("unexpected response (%d): %v", resp.StatusCode, err), Payload: payload}
	}

	switch {
	case out.Error != "":
		return Result{Outcome: OutcomeAlertReload, Alert: out.Error, Payload: payload}
	case resp.StatusCode >= http.StatusBadRequest:
		msg := out.Message
		if msg == "" {
			msg = resp.Status
		}
		return Result{Outcome: OutcomeAlertReload, Alert: msg, Payload: payload}
	case out.Success && out.Message == MsgProvideMobile:
		return Result{Outcome: OutcomePromptMobile, Alert: out.Message, Payload: payload}
	case out.Success:
		return Result{Outcome: OutcomeReload, Payload: payload}
	default:
		return Result{Outcome: OutcomeNone, Payload: payload}
	}
}

func alertText(err error) string {
	if ve, ok := errors.AsType[*ValidationError](err); ok {
		return ve.Message
	}
	return err.Error()
}

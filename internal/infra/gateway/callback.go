package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"
)

// Callback is the verdict extracted from a gateway notification.
type Callback struct {
	ExternalID string
	Success    bool
	Reference  string
	Note       string
}

var (
	// ErrIgnoredEvent marks notifications that carry no payment verdict.
	ErrIgnoredEvent    = errors.New("gateway: event carries no verdict")
	ErrUnknownGateway  = errors.New("gateway: unknown callback source")
	ErrMalformedNotice = errors.New("gateway: malformed callback payload")
)

// ParseCallback extracts the verdict from the raw body posted by source. It
// does not authenticate the body; HTTP callbacks go through Registry.Callback.
func ParseCallback(source string, body []byte) (Callback, error) {
	switch strings.ToLower(source) {
	case "mpesa":
		return parseMpesa(body)
	case "paypal":
		return parsePaypal(body)
	case "airtel":
		return parseAirtel(body)
	case "stripe":
		return parseStripe(body)
	case "sandbox":
		return parseSandbox(body)
	}
	return Callback{}, fmt.Errorf("%w: %q", ErrUnknownGateway, source)
}

func parseMpesa(body []byte) (Callback, error) {
	var payload struct {
		Body struct {
			StkCallback struct {
				CheckoutRequestID string      `json:"CheckoutRequestID"`
				ResultCode        json.Number `json:"ResultCode"`
				ResultDesc        string      `json:"ResultDesc"`
				CallbackMetadata  struct {
					Item []struct {
						Name  string `json:"Name"`
						Value any    `json:"Value"`
					} `json:"Item"`
				} `json:"CallbackMetadata"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}
	if err := decode(body, &payload); err != nil {
		return Callback{}, err
	}
	stk := payload.Body.StkCallback
	if stk.CheckoutRequestID == "" || stk.ResultCode == "" {
		return Callback{}, fmt.Errorf("%w: stkCallback incomplete", ErrMalformedNotice)
	}
	note := stk.ResultDesc
	for _, item := range stk.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			note = fmt.Sprintf("%s (receipt %v)", note, item.Value)
		}
	}
	// The checkout id stays the reference so repeated callbacks find the payment.
	return Callback{
		ExternalID: stk.CheckoutRequestID,
		Success:    stk.ResultCode.String() == "0",
		Reference:  stk.CheckoutRequestID,
		Note:       note,
	}, nil
}

func parsePaypal(body []byte) (Callback, error) {
	var payload struct {
		EventType string `json:"event_type"`
		Summary   string `json:"summary"`
		Resource  struct {
			ID                string `json:"id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := decode(body, &payload); err != nil {
		return Callback{}, err
	}
	orderID := payload.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = payload.Resource.ID
	}
	if orderID == "" {
		return Callback{}, fmt.Errorf("%w: resource id missing", ErrMalformedNotice)
	}
	var success bool
	switch payload.EventType {
	case "CHECKOUT.ORDER.APPROVED", "CHECKOUT.ORDER.COMPLETED", "PAYMENT.CAPTURE.COMPLETED":
		success = true
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED", "CHECKOUT.ORDER.VOIDED":
		success = false
	default:
		return Callback{}, fmt.Errorf("%w: paypal %s", ErrIgnoredEvent, payload.EventType)
	}
	note := payload.Summary
	if note == "" {
		note = "PayPal " + payload.EventType
	}
	return Callback{ExternalID: orderID, Success: success, Reference: orderID, Note: note}, nil
}

func parseAirtel(body []byte) (Callback, error) {
	var payload struct {
		Transaction struct {
			ID            string `json:"id"`
			Message       string `json:"message"`
			StatusCode    string `json:"status_code"`
			AirtelMoneyID string `json:"airtel_money_id"`
		} `json:"transaction"`
	}
	if err := decode(body, &payload); err != nil {
		return Callback{}, err
	}
	tx := payload.Transaction
	if tx.ID == "" {
		return Callback{}, fmt.Errorf("%w: transaction id missing", ErrMalformedNotice)
	}
	var success bool
	switch strings.ToUpper(tx.StatusCode) {
	case "TS":
		success = true
	case "TF", "TE":
		success = false
	default:
		return Callback{}, fmt.Errorf("%w: airtel status %q", ErrIgnoredEvent, tx.StatusCode)
	}
	note := tx.Message
	if tx.AirtelMoneyID != "" {
		note = fmt.Sprintf("%s (airtel money id %s)", note, tx.AirtelMoneyID)
	}
	return Callback{ExternalID: tx.ID, Success: success, Reference: tx.ID, Note: strings.TrimSpace(note)}, nil
}

func parseStripe(body []byte) (Callback, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformedNotice, err)
	}
	return stripeVerdict(event)
}

// stripeVerdict reads the PaymentIntent carried by a payment_intent.* event.
func stripeVerdict(event stripe.Event) (Callback, error) {
	var success bool
	switch event.Type {
	case "payment_intent.succeeded":
		success = true
	case "payment_intent.payment_failed", "payment_intent.canceled":
		success = false
	default:
		return Callback{}, fmt.Errorf("%w: stripe %s", ErrIgnoredEvent, event.Type)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return Callback{}, fmt.Errorf("%w: data.object missing", ErrMalformedNotice)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformedNotice, err)
	}
	if intent.ID == "" {
		return Callback{}, fmt.Errorf("%w: data.object.id missing", ErrMalformedNotice)
	}
	if success {
		return Callback{ExternalID: intent.ID, Success: true, Reference: intent.ID, Note: "Stripe payment succeeded"}, nil
	}
	note := "Stripe " + string(event.Type)
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		note = intent.LastPaymentError.Msg
	}
	return Callback{ExternalID: intent.ID, Success: false, Reference: intent.ID, Note: note}, nil
}

func parseSandbox(body []byte) (Callback, error) {
	var payload struct {
		ExternalID string `json:"external_id"`
		Success    *bool  `json:"success"`
		Reference  string `json:"reference"`
		Note       string `json:"note"`
	}
	if err := decode(body, &payload); err != nil {
		return Callback{}, err
	}
	if payload.ExternalID == "" || payload.Success == nil {
		return Callback{}, fmt.Errorf("%w: external_id and success are required", ErrMalformedNotice)
	}
	return Callback{ExternalID: payload.ExternalID, Success: *payload.Success, Reference: payload.Reference, Note: payload.Note}, nil
}

func decode(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedNotice, err)
	}
	return nil
}

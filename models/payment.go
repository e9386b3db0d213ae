package models

import (
	"errors"
)

// PaymentKind selects how the gateway presents the payment to the user.
type PaymentKind string

const (
	// PaymentKindCode is a scannable code URL rendered out of app.
	PaymentKindCode PaymentKind = "code"
	// PaymentKindJSAPI is a set of signed parameters for in-app invocation.
	PaymentKindJSAPI PaymentKind = "jsapi"
)

// JSAPIParams are the signed gateway parameters handed to the in-app
// payment bridge. They are opaque to this service beyond transport.
type JSAPIParams struct {
	AppID     string `json:"app_id"`
	TimeStamp string `json:"time_stamp"`
	NonceStr  string `json:"nonce_str"`
	Package   string `json:"package"`
	SignType  string `json:"sign_type"`
	PaySign   string `json:"pay_sign"`
}

// PaymentParams is the tagged union of the two presentation modes.
// Exactly one mode is present per order; it is resolved once when the
// gateway responds, never inferred downstream from which field is set.
type PaymentParams struct {
	Kind    PaymentKind  `json:"kind"`
	CodeURL string       `json:"code_url,omitempty"`
	JSAPI   *JSAPIParams `json:"jsapi,omitempty"`
}

// ResolvePaymentParams builds the union from a raw gateway response.
// The gateway must answer in exactly one mode.
func ResolvePaymentParams(codeURL string, jsapi *JSAPIParams) (*PaymentParams, error) {
	switch {
	case codeURL != "" && jsapi != nil:
		return nil, errors.New("payment params: gateway answered in both modes")
	case codeURL != "":
		return &PaymentParams{Kind: PaymentKindCode, CodeURL: codeURL}, nil
	case jsapi != nil:
		return &PaymentParams{Kind: PaymentKindJSAPI, JSAPI: jsapi}, nil
	default:
		return nil, errors.New("payment params: gateway answered in neither mode")
	}
}

// Package wepay implements the HTTP client for the WePay gateway
// backend. It speaks the partner API: HMAC-signed JSON requests, a
// refreshable access token, and settled-transaction push notifications
// over PubNub.
package wepay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"

	"community-events/internal/status"
)

type Config struct {
	ClientConfig `mapstructure:",squash"`

	PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
	PNCipherKey string `json:"pn_cipherkey" mapstructure:"pn_cipherkey"`
	PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
}

type Wepay struct {
	appID      string
	merchantID string

	pnChannels []string

	client *client
	sub    *subscribe
}

// UnifiedOrderForm describes the payment to create. A non-empty PayerID
// requests the in-app mode; otherwise the gateway answers a code URL.
type UnifiedOrderForm struct {
	OutTradeNo  string
	Description string
	Amount      decimal.Decimal
	Currency    string
	PayerID     string
	ExpireAt    time.Time
}

// JSAPIFields are the signed parameters for in-app invocation.
type JSAPIFields struct {
	AppID     string `json:"appId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

// UnifiedOrderReply carries exactly one presentation mode.
type UnifiedOrderReply struct {
	CodeURL string
	JSAPI   *JSAPIFields
}

// New returns a connected Wepay instance subscribed to payment
// notifications.
func New(ctx context.Context, cfg *Config) (*Wepay, error) {
	client := newClient(ctx, &cfg.ClientConfig)

	// Connect to the gateway backend and fetch an access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.notifyAccessTokenExpired(ctx)

	w := &Wepay{
		appID:      cfg.AppID,
		merchantID: cfg.MerchantID,
		pnChannels: []string{cfg.PNChannel},
		client:     client,
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
	pnCfg.SubscribeKey = cfg.PNSubKey
	pnCfg.SecretKey = cfg.PNSubSecret
	pnCfg.CipherKey = cfg.PNCipherKey

	w.sub = w.newSubscription(ctx, pnCfg)
	w.sub.pn.AddListener(w.sub.lis)
	w.sub.pn.Subscribe().Channels(w.pnChannels).Execute()

	return w, nil
}

// UnifiedOrder creates a payment at the gateway.
func (w *Wepay) UnifiedOrder(ctx context.Context, f *UnifiedOrderForm) (*UnifiedOrderReply, error) {
	nonce, err := nonceStr()
	if err != nil {
		return nil, fmt.Errorf("wepay unifiedOrder: nonce: %w", err)
	}

	body := fmt.Sprintf(
		`{"requestId":%q,"merchantId":%q,"appId":%q,"outTradeNo":%q,"description":%q,"amount":%s,"currency":%q,"payerId":%q,"expireAt":%q}`,
		nonce, w.merchantID, w.appID, f.OutTradeNo, f.Description,
		f.Amount, f.Currency, f.PayerID, f.ExpireAt.Format(time.RFC3339))

	var reply struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			CodeURL string       `json:"codeUrl"`
			JSAPI   *JSAPIFields `json:"jsapi"`
		} `json:"data"`
	}
	if err := w.client.call(ctx, "/api/pay/unifiedorder", body, true, &reply); err != nil {
		return nil, fmt.Errorf("wepay unifiedOrder: %w", err)
	}
	if reply.Code != "OK" {
		return nil, replyError("unifiedOrder", reply.Code, reply.Message)
	}

	return &UnifiedOrderReply{CodeURL: reply.Data.CodeURL, JSAPI: reply.Data.JSAPI}, nil
}

// QueryTransaction checks the settlement status of a payment.
func (w *Wepay) QueryTransaction(ctx context.Context, outTradeNo string) (*status.Transaction, error) {
	nonce, err := nonceStr()
	if err != nil {
		return nil, fmt.Errorf("wepay queryTransaction: nonce: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"outTradeNo":%q}`,
		nonce, w.merchantID, outTradeNo)

	var reply struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			OutTradeNo string          `json:"outTradeNo"`
			RefID      string          `json:"transactionId"`
			State      string          `json:"tradeState"`
			Amount     decimal.Decimal `json:"amount"`
			Currency   string          `json:"currency"`
			PaidAt     string          `json:"successTime"`
		} `json:"data"`
	}
	if err := w.client.call(ctx, "/api/pay/query", body, true, &reply); err != nil {
		return nil, fmt.Errorf("wepay queryTransaction: %w", err)
	}
	if reply.Code != "OK" {
		if reply.Code == "NOT_FOUND" {
			return nil, status.ErrFailedPayment
		}
		return nil, replyError("queryTransaction", reply.Code, reply.Message)
	}

	paidAt, _ := time.Parse(time.RFC3339, reply.Data.PaidAt)
	return &status.Transaction{
		OrderID:  reply.Data.OutTradeNo,
		RefID:    reply.Data.RefID,
		Status:   reply.Data.State,
		Amount:   reply.Data.Amount,
		Currency: reply.Data.Currency,
		PaidAt:   paidAt,
	}, nil
}

// CloseTransaction voids an unfinished payment.
func (w *Wepay) CloseTransaction(ctx context.Context, outTradeNo string) error {
	nonce, err := nonceStr()
	if err != nil {
		return fmt.Errorf("wepay closeTransaction: nonce: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"merchantId":%q,"outTradeNo":%q}`,
		nonce, w.merchantID, outTradeNo)

	var reply struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := w.client.call(ctx, "/api/pay/close", body, true, &reply); err != nil {
		return fmt.Errorf("wepay closeTransaction: %w", err)
	}
	// Closing an already-closed payment is not an error.
	if reply.Code != "OK" && reply.Code != "ALREADY_CLOSED" {
		return replyError("closeTransaction", reply.Code, reply.Message)
	}
	return nil
}

// SetTransactionChannel sets the channel for settled-transaction
// notifications.
func (w *Wepay) SetTransactionChannel(ch chan *status.Transaction) {
	w.sub.ch = ch
}

// Close unsubscribes from payment notifications.
func (w *Wepay) Close(ctx context.Context) error {
	w.sub.pn.Unsubscribe().Channels(w.pnChannels).Execute()
	return nil
}

// replyError maps gateway failure payloads onto domain errors. The
// missing payment-identity binding gets its own sentinel so callers can
// run the bind-identity remediation flow instead of a generic failure.
func replyError(op, code, message string) error {
	if code == "IDENTITY_NOT_BOUND" || strings.Contains(strings.ToLower(message), "openid") {
		return status.ErrIdentityNotBound
	}
	return fmt.Errorf("wepay %s: code %s: %s", op, code, message)
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *status.Transaction
}

func (w *Wepay) newSubscription(ctx context.Context, pnCfg *pubnub.Config) *subscribe {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub
}

func (s *subscribe) processSubscription(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case st := <-s.lis.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			default:
			}

		case message := <-s.lis.Message:
			s.handleMessage(message)
		}
	}
}

func (s *subscribe) handleMessage(message *pubnub.PNMessage) {
	if s.ch == nil {
		return
	}

	data, ok := message.Message.(map[string]any)
	if !ok {
		return
	}

	var tx status.Transaction
	jsonData, _ := json.Marshal(data)
	if err := json.Unmarshal(jsonData, &tx); err != nil {
		log.Printf("wepay: error parsing payment notification: %v", err)
		return
	}
	if tx.OrderID == "" {
		return
	}

	s.ch <- &tx
}

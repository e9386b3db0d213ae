package payment

import (
	"context"

	"community-events/config"
	"community-events/internal/payment/wepay"
	"community-events/internal/status"
	"community-events/models"
	"community-events/utils"
)

// wepayGateway adapts the wepay client to the Gateway interface. All
// outbound calls pass through a circuit breaker so a misbehaving
// gateway fails fast instead of exhausting the request pool.
type wepayGateway struct {
	wp *wepay.Wepay
	cb *utils.CircuitBreaker
}

func newWepayGateway(ctx context.Context, cfg *config.Config) (Gateway, error) {
	wp, err := wepay.New(ctx, &wepay.Config{
		ClientConfig: wepay.ClientConfig{
			BaseURL:    cfg.WepayBaseURL,
			AppID:      cfg.WepayAppID,
			MerchantID: cfg.WepayMerchantID,
			ClientKey:  cfg.WepayClientKey,
			HMACKey:    cfg.WepayHMACKey,
		},
		PNSubKey:    cfg.WepayPNSubKey,
		PNSubSecret: cfg.WepayPNSubSecret,
		PNCipherKey: cfg.WepayPNCipherKey,
		PNUUID:      cfg.WepayPNUUID,
		PNChannel:   cfg.WepayPNChannel,
	})
	if err != nil {
		return nil, err
	}

	return &wepayGateway{
		wp: wp,
		cb: utils.NewCircuitBreaker("wepay"),
	}, nil
}

func (g *wepayGateway) Provider() Provider { return ProviderWepay }

func (g *wepayGateway) CreatePayment(ctx context.Context, req *Request) (*models.PaymentParams, error) {
	result, err := g.cb.Execute(ctx, func() (any, error) {
		return g.wp.UnifiedOrder(ctx, &wepay.UnifiedOrderForm{
			OutTradeNo:  req.OrderID,
			Description: req.Description,
			Amount:      req.Amount,
			Currency:    req.Currency,
			PayerID:     req.PayerID,
			ExpireAt:    req.ExpireAt,
		})
	})
	if err != nil {
		return nil, err
	}

	reply := result.(*wepay.UnifiedOrderReply)

	var jsapi *models.JSAPIParams
	if reply.JSAPI != nil {
		jsapi = &models.JSAPIParams{
			AppID:     reply.JSAPI.AppID,
			TimeStamp: reply.JSAPI.TimeStamp,
			NonceStr:  reply.JSAPI.NonceStr,
			Package:   reply.JSAPI.Package,
			SignType:  reply.JSAPI.SignType,
			PaySign:   reply.JSAPI.PaySign,
		}
	}
	return models.ResolvePaymentParams(reply.CodeURL, jsapi)
}

func (g *wepayGateway) QueryPayment(ctx context.Context, orderID string) (*status.Transaction, error) {
	result, err := g.cb.Execute(ctx, func() (any, error) {
		return g.wp.QueryTransaction(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*status.Transaction), nil
}

func (g *wepayGateway) ClosePayment(ctx context.Context, orderID string) error {
	_, err := g.cb.Execute(ctx, func() (any, error) {
		return nil, g.wp.CloseTransaction(ctx, orderID)
	})
	return err
}

func (g *wepayGateway) SetTransactionChannel(ch chan *status.Transaction) {
	g.wp.SetTransactionChannel(ch)
}

func (g *wepayGateway) Close(ctx context.Context) error {
	return g.wp.Close(ctx)
}

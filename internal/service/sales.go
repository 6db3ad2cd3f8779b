package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/apperr"
	"github.com/Shivanand-hulikatti/festreg/internal/metrics"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/pricing"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
)

// SaleReceipt is a stored stall sale with its payment request.
type SaleReceipt struct {
	Record  *model.ServiceRecord   `json:"record"`
	Payment pricing.PaymentRequest `json:"payment"`
}

// SalesService prices and records stall sales.
type SalesService struct {
	records  *repository.ServiceRecordRepository
	settings *SettingService
	upiLabel string
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewSalesService constructs a SalesService. upiLabel is the note attached to
// UPI payment links.
func NewSalesService(
	records *repository.ServiceRecordRepository,
	settings *SettingService,
	upiLabel string,
	m *metrics.Metrics,
	log *zap.Logger,
) *SalesService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SalesService{records: records, settings: settings, upiLabel: upiLabel, metrics: m, log: log.Named("sales")}
}

// SaleQuote is a priced order with the payment request to show before the
// money is collected. Nothing is stored for a quote.
type SaleQuote struct {
	ClientName  string                 `json:"client_name"`
	PaymentMode model.PaymentMode      `json:"payment_mode"`
	Lines       []model.ServiceLine    `json:"lines"`
	Total       int                    `json:"total"`
	Payment     pricing.PaymentRequest `json:"payment"`
}

// QuoteSale validates and prices the order and builds its payment request.
// It has no side effects; an abandoned quote leaves no trace.
func (s *SalesService) QuoteSale(ctx context.Context, order model.ServiceOrder) (*SaleQuote, error) {
	order.ClientName = strings.TrimSpace(order.ClientName)
	if order.PaymentMode == "" {
		order.PaymentMode = model.PaymentCash
	}
	if order.ClientName == "" {
		return nil, apperr.NewValidation("client_name", "Name is required")
	}
	if !order.PaymentMode.Valid() {
		return nil, apperr.NewValidation("payment_mode", "Payment mode must be CASH or UPI")
	}

	priced, err := pricing.PriceServices(order)
	if err != nil {
		return nil, err
	}

	var address string
	if order.PaymentMode == model.PaymentUPI {
		address, err = s.settings.SettingValue(ctx, model.SettingUPI)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NewValidation("payment_mode", "UPI address is not configured")
			}
			return nil, err
		}
	}

	return &SaleQuote{
		ClientName:  order.ClientName,
		PaymentMode: order.PaymentMode,
		Lines:       priced.Lines,
		Total:       priced.Total,
		Payment:     pricing.NewPaymentRequest(order.PaymentMode, priced.Total, address, s.upiLabel),
	}, nil
}

// RecordSale stores an order once its payment has been collected. The order
// is priced again from its counts; a quote's total is never trusted.
func (s *SalesService) RecordSale(ctx context.Context, order model.ServiceOrder) (*SaleReceipt, error) {
	q, err := s.QuoteSale(ctx, order)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.Create(ctx, model.ServiceRecord{
		ClientName:  q.ClientName,
		Services:    q.Lines,
		PaymentMode: q.PaymentMode,
		Total:       q.Total,
	})
	if err != nil {
		return nil, apperr.Dependency("record service sale", err)
	}

	s.metrics.ServiceSale(rec.Total)
	s.log.Info("service sale recorded", zap.String("record_id", rec.ID), zap.Int("total", rec.Total))
	return &SaleReceipt{Record: rec, Payment: q.Payment}, nil
}

// ListSales returns every stall sale, newest first.
func (s *SalesService) ListSales(ctx context.Context) ([]model.ServiceRecord, error) {
	recs, err := s.records.List(ctx)
	if err != nil {
		return nil, apperr.Dependency("list service sales", err)
	}
	return recs, nil
}

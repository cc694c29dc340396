package correction

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrReceiptNotFound = errors.New("correction: receipt not found")

// ReceiptWriter persists a validated correction.
type ReceiptWriter interface {
	UpdateReceiptCorrection(ctx context.Context, u Update, actor string, requestID string) error
}

// Service is the server side of the update endpoint. It re-runs the same
// gates as the page before writing.
type Service struct {
	store     ReceiptWriter
	validator *Validator
	logger    *zap.Logger
}

func NewService(store ReceiptWriter, validator *Validator, logger *zap.Logger) *Service {
	if validator == nil {
		validator = MustDefaultValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, validator: validator, logger: logger}
}

// Apply validates and stores u. Business failures come back as
// Response.Error; the returned error is reserved for infrastructure faults.
func (s *Service) Apply(ctx context.Context, u Update, actor string, requestID string) (Response, error) {
	if err := s.validator.Check(u.view()); err != nil {
		if ve, ok := errors.AsType[*ValidationError](err); ok {
			s.logger.Info("receipt correction rejected",
				zap.Int64("sale_receipt_id", u.SaleReceiptID),
				zap.String("rule", ve.Rule),
				zap.String("request_id", requestID),
			)
			return Response{Error: ve.Message}, nil
		}
		return Response{}, err
	}

	if err := s.store.UpdateReceiptCorrection(ctx, u, actor, requestID); err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			return Response{Error: "Receipt not found"}, nil
		}
		return Response{}, fmt.Errorf("correction: update receipt %d: %w", u.SaleReceiptID, err)
	}

	s.logger.Info("receipt corrected",
		zap.Int64("sale_receipt_id", u.SaleReceiptID),
		zap.String("actor", actor),
		zap.String("request_id", requestID),
	)
	if u.MobileNotAvailable && u.TraderCodeNotAvailable {
		return Response{Success: true, Message: MsgProvideMobile}, nil
	}
	return Response{Success: true, Message: "Receipt updated"}, nil
}

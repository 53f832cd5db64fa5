package usecase

import (
	"context"
	"fmt"
	"time"

	"mail-delivery-service/internal/domain"
)

// SendLogService は送信試行の監査ログを照会するユースケース。
// 集計以外のビジネスロジックは持たない。
type SendLogService struct {
	attempts SendAttemptRepository
	domains  DomainRepository
	now      func() time.Time
}

// NewSendLogService はSendLogServiceを生成する。
func NewSendLogService(attempts SendAttemptRepository, domains DomainRepository) *SendLogService {
	return &SendLogService{attempts: attempts, domains: domains, now: time.Now}
}

// resolveDomainID はドメイン名をIDに解決する。空文字は絞り込みなしを意味する。
func (s *SendLogService) resolveDomainID(ctx context.Context, domainName string) (string, error) {
	if domainName == "" {
		return "", nil
	}
	d, err := s.domains.FindByName(ctx, domain.NormalizeDomainName(domainName))
	if err != nil {
		return "", fmt.Errorf("failed to find domain: %w", err)
	}
	if d == nil {
		return "", domain.ErrDomainNotFound
	}
	return d.ID, nil
}

// List は送信試行を新しい順で返す。ドメイン名とステータスで絞り込める。
func (s *SendLogService) List(ctx context.Context, domainName string, status domain.SendStatus, limit, offset int) ([]*domain.SendAttempt, error) {
	domainID, err := s.resolveDomainID(ctx, domainName)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.List(ctx, domain.SendAttemptFilter{
		DomainID: domainID,
		Status:   status,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list send attempts: %w", err)
	}
	return attempts, nil
}

// Stats は送信試行の集計値を返す。ドメイン名で絞り込める。
func (s *SendLogService) Stats(ctx context.Context, domainName string) (*domain.SendStats, error) {
	domainID, err := s.resolveDomainID(ctx, domainName)
	if err != nil {
		return nil, err
	}
	stats, err := s.attempts.Stats(ctx, domainID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate send stats: %w", err)
	}
	return stats, nil
}

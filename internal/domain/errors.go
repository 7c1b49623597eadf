package domain

import "errors"

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrApprovalNotFound      = errors.New("approval not found")
	ErrInvalidApprovalStatus = errors.New("approval status must be approved or rejected")
	ErrMinimumApprovals      = errors.New("minimum approved sources not reached")
	ErrKeyNotFound           = errors.New("cache key not found")
	ErrQuotaExceeded         = errors.New("durable store capacity exceeded")
	ErrStreamClosed          = errors.New("event stream closed")
)

package service

import (
	"fmt"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

// transitions maps each legal edge to the log tag that must precede it.
var transitions = map[int32]map[int32]string{
	entity.SessionStatusNotPaid: {
		entity.SessionStatusPaid:           entity.LogTagPaymentVerify,
		entity.SessionStatusFailed:         entity.LogTagPaymentVerify,
		entity.SessionStatusInquiryProblem: entity.LogTagPaymentVerify,
	},
	entity.SessionStatusPaid: {
		entity.SessionStatusInquiryProblem: entity.LogTagPaymentInquiry,
	},
}

func checkTransition(from, to int32, logTag string) error {
	edges, ok := transitions[from]
	if !ok {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, entity.SessionStatusName(from))
	}
	required, ok := edges[to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entity.SessionStatusName(from), entity.SessionStatusName(to))
	}
	if required != logTag {
		return fmt.Errorf("%w: %s -> %s requires a %s log, got %s",
			ErrInvalidTransition, entity.SessionStatusName(from), entity.SessionStatusName(to), required, logTag)
	}
	return nil
}

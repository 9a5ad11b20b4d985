package service

import "github.com/vibast-solutions/ms-go-transactions/app/entity"

// InquiryPolicy decides whether an inquiry result contradicts a PAID session
// strongly enough to move it to INQUIRY_PROBLEM.
type InquiryPolicy func(session *entity.TransactionSession, inquirySucceeded bool) bool

func NeverFlagInquiry(*entity.TransactionSession, bool) bool {
	return false
}

func FlagFailedInquiry(session *entity.TransactionSession, inquirySucceeded bool) bool {
	return session.Status == entity.SessionStatusPaid && !inquirySucceeded
}

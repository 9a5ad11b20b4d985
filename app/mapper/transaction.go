package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/gate"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
)

func SessionToProto(item *entity.TransactionSession) *types.TransactionSession {
	if item == nil {
		return nil
	}

	return &types.TransactionSession{
		Id:           item.ID,
		OrderId:      item.OrderID,
		Authority:    item.Authority,
		Gate:         item.PSP,
		Amount:       item.Amount,
		TrackingCode: derefString(item.TrackingCode),
		Description:  derefString(item.Description),
		Note:         derefString(item.Note),
		Status:       item.Status,
		StatusName:   entity.SessionStatusName(item.Status),
		Type:         item.Type,
		CardPan:      derefString(item.CardPan),
		CardHash:     derefString(item.CardHash),
		PayerMobile:  derefString(item.PayerMobile),
		Ip:           item.IP,
		CreatedAt:    formatTime(item.CreatedAt),
		UpdatedAt:    formatTime(item.UpdatedAt),
	}
}

func SessionsToProto(items []*entity.TransactionSession) []*types.TransactionSession {
	result := make([]*types.TransactionSession, 0, len(items))
	for _, item := range items {
		result = append(result, SessionToProto(item))
	}
	return result
}

func LogToProto(item *entity.TransactionLog) *types.TransactionLog {
	if item == nil {
		return nil
	}

	return &types.TransactionLog{
		Id:           item.ID,
		SessionId:    item.SessionID,
		BankDriver:   item.BankDriver,
		Status:       item.Status,
		Outcome:      item.Outcome,
		Request:      item.Request,
		Response:     item.Response,
		ResponseCode: derefString(item.ResponseCode),
		Description:  derefString(item.Description),
		Ip:           item.IP,
		TrackingCode: derefString(item.TrackingCode),
		CreatedAt:    formatTime(item.CreatedAt),
	}
}

func LogsToProto(items []*entity.TransactionLog) []*types.TransactionLog {
	result := make([]*types.TransactionLog, 0, len(items))
	for _, item := range items {
		result = append(result, LogToProto(item))
	}
	return result
}

func InquiryToProto(item *entity.TransactionInquiry) *types.TransactionInquiry {
	if item == nil {
		return nil
	}

	return &types.TransactionInquiry{
		Id:         item.ID,
		SessionId:  item.SessionID,
		Status:     item.Status,
		StatusName: entity.InquiryStatusName(item.Status),
		Attempts:   item.Attempts,
		CreatedAt:  formatTime(item.CreatedAt),
		UpdatedAt:  formatTime(item.UpdatedAt),
	}
}

func InquiriesToProto(items []*entity.TransactionInquiry) []*types.TransactionInquiry {
	result := make([]*types.TransactionInquiry, 0, len(items))
	for _, item := range items {
		result = append(result, InquiryToProto(item))
	}
	return result
}

func RedirectToProto(item gate.Redirect) *types.Redirect {
	return &types.Redirect{
		Action: item.Action,
		Method: item.Method,
		Inputs: cloneInputs(item.Inputs),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func cloneInputs(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

package types

// Message shapes shared by the HTTP and gRPC transports. Field names follow
// the JSON documents exchanged on both.

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type Redirect struct {
	Action string            `json:"action"`
	Method string            `json:"method"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

type TransactionSession struct {
	Id           uint64 `json:"id"`
	OrderId      string `json:"order_id"`
	Authority    string `json:"authority"`
	Gate         string `json:"gate"`
	Amount       int64  `json:"amount"`
	TrackingCode string `json:"tracking_code,omitempty"`
	Description  string `json:"description,omitempty"`
	Note         string `json:"note,omitempty"`
	Status       int32  `json:"status"`
	StatusName   string `json:"status_name"`
	Type         int32  `json:"type"`
	CardPan      string `json:"card_pan,omitempty"`
	CardHash     string `json:"card_hash,omitempty"`
	PayerMobile  string `json:"payer_mobile,omitempty"`
	Ip           string `json:"ip,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type TransactionLog struct {
	Id           uint64 `json:"id"`
	SessionId    uint64 `json:"session_id"`
	BankDriver   string `json:"bank_driver"`
	Status       string `json:"status"`
	Outcome      int32  `json:"outcome"`
	Request      string `json:"request"`
	Response     string `json:"response"`
	ResponseCode string `json:"response_code,omitempty"`
	Description  string `json:"description,omitempty"`
	Ip           string `json:"ip,omitempty"`
	TrackingCode string `json:"tracking_code,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type TransactionInquiry struct {
	Id         uint64 `json:"id"`
	SessionId  uint64 `json:"session_id"`
	Status     int32  `json:"status"`
	StatusName string `json:"status_name"`
	Attempts   int32  `json:"attempts"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type InitiateTransactionRequest struct {
	OrderId     string            `json:"order_id"`
	Amount      int64             `json:"amount"`
	Gate        string            `json:"gate"`
	Type        int32             `json:"type"`
	Description string            `json:"description"`
	Payer       map[string]string `json:"payer"`
	Ip          string            `json:"ip"`
}

func (r *InitiateTransactionRequest) GetOrderId() string {
	if r == nil {
		return ""
	}
	return r.OrderId
}

func (r *InitiateTransactionRequest) GetAmount() int64 {
	if r == nil {
		return 0
	}
	return r.Amount
}

func (r *InitiateTransactionRequest) GetGate() string {
	if r == nil {
		return ""
	}
	return r.Gate
}

func (r *InitiateTransactionRequest) GetType() int32 {
	if r == nil {
		return 0
	}
	return r.Type
}

type InitiateTransactionResponse struct {
	Session  *TransactionSession `json:"session"`
	Redirect *Redirect           `json:"redirect"`
}

type VerifyTransactionRequest struct {
	Gate      string            `json:"gate"`
	Token     string            `json:"token"`
	Authority string            `json:"authority"`
	Data      map[string]string `json:"data"`
	Payload   string            `json:"payload"`
	Signature string            `json:"signature"`
	Ip        string            `json:"ip"`
}

func (r *VerifyTransactionRequest) GetGate() string {
	if r == nil {
		return ""
	}
	return r.Gate
}

func (r *VerifyTransactionRequest) GetToken() string {
	if r == nil {
		return ""
	}
	return r.Token
}

func (r *VerifyTransactionRequest) GetAuthority() string {
	if r == nil {
		return ""
	}
	return r.Authority
}

type SessionEnvelopeResponse struct {
	Session *TransactionSession `json:"session"`
}

type GetSessionRequest struct {
	Id uint64 `json:"id"`
}

func (r *GetSessionRequest) GetId() uint64 {
	if r == nil {
		return 0
	}
	return r.Id
}

type ListSessionsRequest struct {
	OrderId   string `json:"order_id"`
	Gate      string `json:"gate"`
	HasStatus bool   `json:"has_status"`
	Status    int32  `json:"status"`
	Limit     int32  `json:"limit"`
	Offset    int32  `json:"offset"`
}

func (r *ListSessionsRequest) GetOrderId() string {
	if r == nil {
		return ""
	}
	return r.OrderId
}

func (r *ListSessionsRequest) GetGate() string {
	if r == nil {
		return ""
	}
	return r.Gate
}

func (r *ListSessionsRequest) GetHasStatus() bool {
	if r == nil {
		return false
	}
	return r.HasStatus
}

func (r *ListSessionsRequest) GetStatus() int32 {
	if r == nil {
		return 0
	}
	return r.Status
}

func (r *ListSessionsRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

func (r *ListSessionsRequest) GetOffset() int32 {
	if r == nil {
		return 0
	}
	return r.Offset
}

type ListSessionsResponse struct {
	Sessions []*TransactionSession `json:"sessions"`
}

type ListLogsResponse struct {
	Logs []*TransactionLog `json:"logs"`
}

type ListInquiriesResponse struct {
	Inquiries []*TransactionInquiry `json:"inquiries"`
}

type UpdateNoteRequest struct {
	Id   uint64 `json:"id"`
	Note string `json:"note"`
}

func (r *UpdateNoteRequest) GetId() uint64 {
	if r == nil {
		return 0
	}
	return r.Id
}

func (r *UpdateNoteRequest) GetNote() string {
	if r == nil {
		return ""
	}
	return r.Note
}

type ProcessInquiryRequest struct {
	Id uint64 `json:"id"`
}

func (r *ProcessInquiryRequest) GetId() uint64 {
	if r == nil {
		return 0
	}
	return r.Id
}

type InquiryEnvelopeResponse struct {
	Inquiry *TransactionInquiry `json:"inquiry"`
}

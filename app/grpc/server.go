package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/vibast-solutions/ms-go-transactions/app/mapper"
	"github.com/vibast-solutions/ms-go-transactions/app/service"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	transactionService *service.TransactionService
}

func NewServer(transactionService *service.TransactionService) *Server {
	return &Server{transactionService: transactionService}
}

func (s *Server) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(&types.HealthResponse{Status: "ok"})
}

func (s *Server) Initiate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	l := loggerWithContext(ctx)

	var req types.InitiateTransactionRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	req.OrderId = strings.TrimSpace(req.OrderId)
	req.Gate = strings.ToLower(strings.TrimSpace(req.Gate))
	req.Description = strings.TrimSpace(req.Description)
	if err := req.Validate(); err != nil {
		l.WithError(err).Debug("Initiate transaction validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.transactionService.Initiate(ctx, service.InitiateInput{
		OrderID:     req.GetOrderId(),
		Amount:      req.GetAmount(),
		Gate:        req.GetGate(),
		Type:        req.GetType(),
		Description: req.Description,
		Payer:       req.PayerIdentity(),
		IP:          callerIP(ctx, req.Ip),
	})
	if err != nil {
		return nil, s.serviceError(ctx, err, "Initiate transaction failed")
	}

	return encode(&types.InitiateTransactionResponse{
		Session:  mapper.SessionToProto(result.Session),
		Redirect: mapper.RedirectToProto(result.Redirect),
	})
}

// Verify accepts a callback relayed by a trusted caller. Unlike the HTTP
// callback route, a replay is reported as AlreadyExists.
func (s *Server) Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.VerifyTransactionRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	req.Gate = strings.ToLower(strings.TrimSpace(req.Gate))
	req.Token = strings.TrimSpace(req.Token)
	req.Authority = strings.TrimSpace(req.Authority)
	if req.Authority == "" {
		req.Authority = strings.TrimSpace(req.Data["authority"])
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.transactionService.Verify(ctx, service.VerifyInput{
		Gate:          req.GetGate(),
		CallbackToken: req.GetToken(),
		Authority:     req.GetAuthority(),
		CallbackData:  req.Data,
		RawCallback:   []byte(req.Payload),
		Signature:     req.Signature,
		IP:            callerIP(ctx, req.Ip),
	})
	if err != nil {
		return nil, s.serviceError(ctx, err, "Verify transaction failed")
	}

	return encode(&types.SessionEnvelopeResponse{Session: mapper.SessionToProto(item)})
}

func (s *Server) Inquire(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.ProcessInquiryRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.transactionService.Inquire(ctx, req.GetId())
	if err != nil {
		return nil, s.serviceError(ctx, err, "Process inquiry failed")
	}

	return encode(&types.InquiryEnvelopeResponse{Inquiry: mapper.InquiryToProto(item)})
}

func (s *Server) GetSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.GetSessionRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.transactionService.GetSession(ctx, req.GetId())
	if err != nil {
		return nil, s.serviceError(ctx, err, "Get transaction failed")
	}

	return encode(&types.SessionEnvelopeResponse{Session: mapper.SessionToProto(item)})
}

func (s *Server) ListSessions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.ListSessionsRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	req.OrderId = strings.TrimSpace(req.OrderId)
	req.Gate = strings.ToLower(strings.TrimSpace(req.Gate))
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	items, err := s.transactionService.ListSessions(ctx, &req)
	if err != nil {
		return nil, s.serviceError(ctx, err, "List transactions failed")
	}

	return encode(&types.ListSessionsResponse{Sessions: mapper.SessionsToProto(items)})
}

func (s *Server) serviceError(ctx context.Context, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrGateUnsupported),
		errors.Is(err, service.ErrInvalidCallback):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		return status.Error(codes.NotFound, "transaction not found")
	case errors.Is(err, service.ErrInquiryNotFound):
		return status.Error(codes.NotFound, "inquiry not found")
	case errors.Is(err, service.ErrAlreadyVerified):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrVerificationInProgress):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, service.ErrInquiryNotWaiting):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrAdapterUnavailable):
		loggerWithContext(ctx).WithError(err).Warn(message)
		return status.Error(codes.Unavailable, "gate unavailable")
	default:
		loggerWithContext(ctx).WithError(err).Error(message)
		return status.Error(codes.Internal, "internal server error")
	}
}

func decode(in *structpb.Struct, out interface{}) error {
	if in == nil {
		return nil
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func encode(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

func callerIP(ctx context.Context, declared string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aisopod/aisopod/internal/metrics"
	"github.com/aisopod/aisopod/internal/router"
	"github.com/aisopod/aisopod/internal/rpc"
)

// RegisterHandlers wires the node.pair.* methods onto r.
func RegisterHandlers(r *router.Router, svc *Service) {
	r.Register("node.pair.request", requestHandler(svc))
	r.Register("node.pair.confirm", confirmHandler(svc))
	r.Register("node.pair.revoke", revokeHandler(svc))
}

type requestParams struct {
	DeviceName    string `json:"device_name"`
	DeviceType    string `json:"device_type"`
	ClientVersion string `json:"client_version"`
	DeviceID      string `json:"device_id"`
}

type requestResult struct {
	PairingCode string    `json:"pairing_code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func requestHandler(svc *Service) router.Handler {
	return router.HandlerFunc(func(_ context.Context, _ *router.CallContext, raw json.RawMessage) (any, *rpc.Error) {
		var p requestParams
		if err := unmarshalParams(raw, &p); err != nil {
			return nil, err
		}
		pending, err := svc.Request(p.DeviceName, p.DeviceType, p.ClientVersion, p.DeviceID)
		if err != nil {
			metrics.RecordPairing("request", false)
			return nil, rpc.Errorf(rpc.CodeInternalError, "Internal error")
		}
		metrics.RecordPairing("request", true)
		return requestResult{PairingCode: pending.Code, ExpiresAt: pending.ExpiresAt}, nil
	})
}

type confirmParams struct {
	PairingCode string `json:"pairing_code"`
	DeviceID    string `json:"device_id"`
}

type confirmResult struct {
	DeviceToken string    `json:"device_token"`
	PairedAt    time.Time `json:"paired_at"`
}

func confirmHandler(svc *Service) router.Handler {
	return router.HandlerFunc(func(ctx context.Context, _ *router.CallContext, raw json.RawMessage) (any, *rpc.Error) {
		var p confirmParams
		if err := unmarshalParams(raw, &p); err != nil {
			return nil, err
		}
		tok, err := svc.Confirm(ctx, p.PairingCode, p.DeviceID)
		if err != nil {
			metrics.RecordPairing("confirm", false)
			if errors.Is(err, ErrCodeInvalid) {
				return nil, rpc.Errorf(rpc.CodePairingInvalid, "Pairing code invalid or expired")
			}
			return nil, rpc.Errorf(rpc.CodeInternalError, "Internal error")
		}
		metrics.RecordPairing("confirm", true)
		return confirmResult{DeviceToken: tok.Secret, PairedAt: tok.IssuedAt}, nil
	})
}

type revokeParams struct {
	DeviceID string `json:"device_id"`
}

type revokeResult struct {
	Revoked bool `json:"revoked"`
}

func revokeHandler(svc *Service) router.Handler {
	return router.HandlerFunc(func(ctx context.Context, _ *router.CallContext, raw json.RawMessage) (any, *rpc.Error) {
		var p revokeParams
		if err := unmarshalParams(raw, &p); err != nil {
			return nil, err
		}
		ok, err := svc.Revoke(ctx, p.DeviceID)
		if err != nil {
			metrics.RecordPairing("revoke", false)
			return nil, rpc.Errorf(rpc.CodeInternalError, "Internal error")
		}
		metrics.RecordPairing("revoke", ok)
		return revokeResult{Revoked: ok}, nil
	})
}

func unmarshalParams(raw json.RawMessage, v any) *rpc.Error {
	if len(raw) == 0 {
		return rpc.Errorf(rpc.CodeInvalidRequest, "Invalid request: missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return rpc.Errorf(rpc.CodeInvalidRequest, "Invalid request: malformed params")
	}
	return nil
}

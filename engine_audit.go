package authcore

import (
	"context"
	"time"
)

func (e *Engine) emitAuthEvent(ctx context.Context, req AuthenticateRequest, result *AuthenticationResult) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "authenticate",
		AuthType:  string(result.AuthType),
		UserID:    result.UserID,
		AppID:     result.AppID,
		ClientIP:  req.ClientIP,
		UserAgent: req.UserAgent,
		Path:      req.RequestPath,
		Method:    req.RequestMethod,
		Success:   result.Success,
	}
	if !result.Success {
		event.ErrorCode = result.ErrorCode
		event.Error = result.ErrorMessage
		if event.AppID == "" {
			event.AppID = req.AppID
		}
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitManagementEvent(ctx context.Context, eventType, userID, appID string, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		AppID:     appID,
		ClientIP:  clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   true,
		Metadata:  metadata,
	})
}

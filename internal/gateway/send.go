package gateway

import (
	"context"
	"net/http"
)

// Purpose tells the send policy what an outbound message is
type Purpose int

const (
	PurposeGeneral Purpose = iota
	PurposeSummary
)

// Send statuses
const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
	StatusBlocked  = "blocked"
)

// SendPolicy decides whether an outbound message may be sent. A denial
// returns the status to report (StatusDisabled or StatusBlocked) and a reason.
type SendPolicy interface {
	Allow(chatID, text string, purpose Purpose) (ok bool, status, reason string)
}

// SendGate is the configured send policy. The zero value disables sending.
type SendGate struct {
	Enabled       bool
	SummariesOnly bool
}

func (g SendGate) Allow(chatID, text string, purpose Purpose) (bool, string, string) {
	if !g.Enabled {
		return false, StatusDisabled, "message sending is disabled"
	}
	if g.SummariesOnly && purpose != PurposeSummary {
		return false, StatusBlocked, "only summary messages may be sent"
	}
	return true, StatusSent, ""
}

// SendResult is the outcome of SendMessage
type SendResult struct {
	ID      string `json:"idMessage"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SendMessage posts text to chatID if the send policy allows it. A denied
// message is not an error; the result carries the denial status.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, purpose Purpose) (*SendResult, error) {
	ok, status, reason := c.policy.Allow(chatID, text, purpose)
	if !ok {
		c.log.Warn().Str("chat_id", chatID).Str("status", status).Str("reason", reason).Msg("Outbound message not sent")
		return &SendResult{Status: status, Message: reason}, nil
	}

	payload := map[string]string{"chatId": chatID, "message": text}
	var res SendResult
	if err := c.call(ctx, http.MethodPost, "sendMessage", payload, &res); err != nil {
		return nil, err
	}
	res.Status = StatusSent
	c.log.Info().Str("chat_id", chatID).Str("id", res.ID).Msg("Message sent")
	return &res, nil
}

package push

import (
	"encoding/json"
	"fmt"

	"smsrelay/internal/constants"
	"smsrelay/internal/models"
)

// wirePayload is the backend's wake-up message. Older backends used
// receivers/smsBody; newer ones use recipients/message. Both shapes are
// accepted, preferring the current fields.
type wirePayload struct {
	Recipients      []string `json:"recipients"`
	Message         string   `json:"message"`
	Receivers       []string `json:"receivers"`
	SMSBody         string   `json:"smsBody"`
	MessageID       string   `json:"smsId"`
	BatchID         string   `json:"smsBatchId"`
	SimSubscription *int     `json:"simSubscription"`
}

func decodeOutbound(data []byte) (models.OutboundRequest, error) {
	var payload wirePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.OutboundRequest{}, fmt.Errorf("failed to decode push payload: %w", err)
	}

	req := models.OutboundRequest{
		Recipients:      payload.Recipients,
		Message:         payload.Message,
		MessageID:       payload.MessageID,
		BatchID:         payload.BatchID,
		SimSubscription: constants.DefaultSimSubscription,
	}
	if len(req.Recipients) == 0 {
		req.Recipients = payload.Receivers
	}
	if req.Message == "" {
		req.Message = payload.SMSBody
	}
	if payload.SimSubscription != nil {
		req.SimSubscription = *payload.SimSubscription
	}

	if len(req.Recipients) == 0 {
		return models.OutboundRequest{}, fmt.Errorf("push payload has no recipients")
	}
	if req.Message == "" {
		return models.OutboundRequest{}, fmt.Errorf("push payload has no message body")
	}
	return req, nil
}

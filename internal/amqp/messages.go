package amqp

import (
	"encoding/json"
	"time"
)

// BatchExecuteMessage asks the worker to execute a confirmed batch. It
// carries only identifiers; the worker loads the confirmed session
// snapshot from the database.
type BatchExecuteMessage struct {
	BatchID   string    `json:"batch_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBatchExecuteMessage(batchID, sessionID string) *BatchExecuteMessage {
	return &BatchExecuteMessage{
		BatchID:   batchID,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

func (m *BatchExecuteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BatchExecuteMessageFromJSON(data []byte) (*BatchExecuteMessage, error) {
	var msg BatchExecuteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BatchResultMessage announces a finished batch for notification sinks.
type BatchResultMessage struct {
	BatchID   string    `json:"batch_id"`
	Status    string    `json:"status"`
	Created   int       `json:"created"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBatchResultMessage(batchID, status string, created, failed int) *BatchResultMessage {
	return &BatchResultMessage{
		BatchID:   batchID,
		Status:    status,
		Created:   created,
		Failed:    failed,
		Timestamp: time.Now(),
	}
}

func (m *BatchResultMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BatchResultMessageFromJSON(data []byte) (*BatchResultMessage, error) {
	var msg BatchResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

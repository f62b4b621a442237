package event

import (
	"encoding/json"
	"fmt"
)

// New はエンティティをシリアライズしてメッセージを生成する。
func New(channel Channel, entity any) (Message, error) {
	payload, err := json.Marshal(entity)
	if err != nil {
		return Message{}, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	return Message{Channel: channel, Payload: payload}, nil
}

// Decode はメッセージのペイロードを指定された型にデシリアライズする。
func Decode[T any](m Message) (*T, error) {
	var data T
	if err := json.Unmarshal(m.Payload, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

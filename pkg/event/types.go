// Package event はドメインイベントのチャネル名とメッセージ形式を定義する。
//
// ドメインイベントは永続化されないベストエフォートの通知で、
// ペイロードは作成されたエンティティをそのままJSONにしたもの。
package event

import "encoding/json"

// Channel はイベントを配信する名前付きチャネル。
type Channel string

const (
	// ChannelUserCreated はユーザーが作成されたことを通知するチャネル。
	ChannelUserCreated Channel = "user:created"
	// ChannelOrderCreated は注文が作成されたことを通知するチャネル。
	ChannelOrderCreated Channel = "order:created"
)

// String はチャネル名を返す。
func (c Channel) String() string {
	return string(c)
}

// Message はチャネル上で観測された1件のドメインイベント。
type Message struct {
	// Channel はイベントが配信されたチャネル。
	Channel Channel `json:"channel"`
	// Payload はシリアライズ済みのエンティティ。
	Payload json.RawMessage `json:"payload"`
}

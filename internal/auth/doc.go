// Package auth は認証サービスを提供する。
//
// 静的に設定された1組の資格情報でログインを受け付けて署名付きトークンを発行し、
// 他のサービスからのトークン検証要求に応答する。トークンを検証できるのはこのサービスだけで、
// ゲートウェイやドメインサービスは検証をここへ委譲する。
package auth

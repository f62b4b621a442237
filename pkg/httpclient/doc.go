// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// ゲートウェイから上流サービスへの転送、ドメインサービスから認証サービスへの
// トークン検証など、サービス間の通信パターンを統一する。
// 冪等なリクエストは一時的な障害に対してリトライする。
package httpclient

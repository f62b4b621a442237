// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 認証サービスへのトークン検証の委譲、リクエストIDの付与、アクセスログ、
// パニックリカバリ、CORS設定など、全サービスで共通して使用するミドルウェアを含む。
package middleware

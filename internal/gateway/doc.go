// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// 保護されたルートではトークン検証を認証サービスへ委譲し、検証済みの識別情報だけを信頼する。
// 認証後のリクエストは対応するドメインサービスへ1対1で転送し、応答をそのまま中継する。
// 注文作成ではクライアントが送ったuserIdを検証済みの利用者IDで必ず上書きする。
package gateway

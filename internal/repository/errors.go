package repository

import "errors"

// 実装（gorm / memory）はこの3つだけを返し、usecase側でHTTPに変換する
var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotFound     = errors.New("not found")
	// unique制約違反（email / google_id / jti の重複）
	ErrConflict = errors.New("conflict")
)

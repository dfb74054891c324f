package usercontext

// Shared Locals/session keys used across handlers and middlewares
const (
	KeyUserID   = "user_id"
	KeyUsername = "username"
	KeyIsAdmin  = "is_admin"
)

package usercontext

// Locals keys shared by middlewares and controllers
const (
	KeyActor     = "actor"
	KeyUserID    = "user_id"
	KeyRequestID = "request_id"
)
